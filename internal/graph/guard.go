package graph

import "sync"

// LineageGuard decides whether a new generation may start at a node.
// Independent branches generate in parallel; overlapping generations along
// one ancestor/descendant chain are forbidden.
//
// The guard is the single writer of the active set. StartGeneration performs
// its blocking check and the insert under one lock acquisition, so two
// sessions racing onto the same lineage cannot both pass.
type LineageGuard struct {
	g *Graph

	mu     sync.Mutex
	active map[string]struct{}
}

// NewLineageGuard creates a guard over the given graph.
func NewLineageGuard(g *Graph) *LineageGuard {
	return &LineageGuard{
		g:      g,
		active: make(map[string]struct{}),
	}
}

// IsBlocked reports whether nodeID shares an ancestor/descendant path (via
// chosen-parent edges) with any actively generating node.
func (l *LineageGuard) IsBlocked(nodeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, blocked := l.blockerLocked(nodeID)
	return blocked
}

// StartGeneration atomically re-checks the blocking condition and claims the
// node. On conflict it returns a ConcurrencyError and performs no mutation.
func (l *LineageGuard) StartGeneration(nodeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if blocker, blocked := l.blockerLocked(nodeID); blocked {
		return &ConcurrencyError{NodeID: nodeID, Blocking: blocker}
	}
	l.active[nodeID] = struct{}{}
	return nil
}

// EndGeneration releases the node. It must run on every exit path, including
// error, cancellation and subprocess crash, since a leaked entry permanently
// blocks the lineage. Releasing an inactive node is a no-op.
func (l *LineageGuard) EndGeneration(nodeID string) {
	l.mu.Lock()
	delete(l.active, nodeID)
	l.mu.Unlock()
}

// Active returns the ids currently generating.
func (l *LineageGuard) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.active))
	for id := range l.active {
		out = append(out, id)
	}
	return out
}

func (l *LineageGuard) blockerLocked(nodeID string) (string, bool) {
	for a := range l.active {
		if l.g.OnSameLineage(nodeID, a) {
			return a, true
		}
	}
	return "", false
}
