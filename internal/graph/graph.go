// Package graph models the branching conversation DAG and the lineage guard
// that decides where generation may run concurrently.
package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role classifies a conversation node.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Node is one message in the conversation graph. Content is append-only
// while an assistant node streams; the bridge never deletes nodes.
type Node struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Streaming bool      `json:"-"`
}

// Edge is a directed parent→child relation.
type Edge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// NewID returns a fresh node id.
func NewID() string { return ulid.Make().String() }

// Graph holds nodes and edges. Structurally a DAG with multiple incoming
// edges allowed; the chosen parent (first recorded incoming edge) is what
// prompt context and lineage are computed from, and the chosen-parent
// relation alone is kept a forest.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	incoming map[string][]string // child → parents, in recorded order
	chosen   map[string]string   // child → chosen parent
	children map[string][]string // parent → children via chosen edges
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		incoming: make(map[string][]string),
		chosen:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// AddNode inserts a node. The id must be unused.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	cp := *n
	g.nodes[n.ID] = &cp
	return nil
}

// AddEdge records a parent→child edge. The first incoming edge for a child
// becomes its chosen parent; later edges are structural only. A chosen edge
// that would close a cycle in the chosen-parent forest is rejected.
func (g *Graph) AddEdge(parent, child string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, child)
	}

	if _, hasChosen := g.chosen[child]; !hasChosen {
		// Would becoming the chosen parent create a cycle? Walk the chosen
		// chain upward from parent and make sure child is not on it.
		for cur := parent; cur != ""; cur = g.chosen[cur] {
			if cur == child {
				return fmt.Errorf("%w: %s -> %s", ErrCycle, parent, child)
			}
		}
		g.chosen[child] = parent
		g.children[parent] = append(g.children[parent], child)
	}
	g.incoming[child] = append(g.incoming[child], parent)
	return nil
}

// Get returns a snapshot of a node.
func (g *Graph) Get(id string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return *n, nil
}

// ChosenParent returns the chosen parent of a node, "" for roots.
func (g *Graph) ChosenParent(id string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chosen[id]
}

// Ancestors returns the chosen-parent chain of id, nearest first. The node
// itself is not included.
func (g *Graph) Ancestors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ancestorsLocked(id)
}

func (g *Graph) ancestorsLocked(id string) []string {
	var chain []string
	for cur := g.chosen[id]; cur != ""; cur = g.chosen[cur] {
		chain = append(chain, cur)
	}
	return chain
}

// OnSameLineage reports whether a and b lie on one ancestor/descendant path
// through chosen-parent edges (including a == b).
func (g *Graph) OnSameLineage(a, b string) bool {
	if a == b {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for cur := g.chosen[a]; cur != ""; cur = g.chosen[cur] {
		if cur == b {
			return true
		}
	}
	for cur := g.chosen[b]; cur != ""; cur = g.chosen[cur] {
		if cur == a {
			return true
		}
	}
	return false
}

// Path returns the node snapshots from the root down to id along chosen
// parents, in conversation order. Used to assemble prompt context.
func (g *Graph) Path(id string) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	var rev []Node
	for cur := id; cur != ""; cur = g.chosen[cur] {
		rev = append(rev, *g.nodes[cur])
	}
	path := make([]Node, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path, nil
}

// AppendContent appends streamed text to a node, in arrival order.
func (g *Graph) AppendContent(id, chunk string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Content += chunk
	return nil
}

// SetStreaming marks whether a node is currently receiving chunks.
func (g *Graph) SetStreaming(id string, streaming bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.Streaming = streaming
	}
}

// SetMeta records the provider/model tag on an assistant node.
func (g *Graph) SetMeta(id, provider, model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[id]; ok {
		n.Provider = provider
		n.Model = model
	}
}

// Nodes returns snapshots of every node, sorted by id for stable output.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns every recorded edge, chosen and structural alike.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for child, parents := range g.incoming {
		for _, p := range parents {
			out = append(out, Edge{Parent: p, Child: child})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Parent != out[j].Parent {
			return out[i].Parent < out[j].Parent
		}
		return out[i].Child < out[j].Child
	})
	return out
}

// EdgesInOrder returns edges grouped by child, each child's incoming edges
// in the order they were recorded. Persistence relies on this: the chosen
// parent is the first incoming edge and must replay first on load.
func (g *Graph) EdgesInOrder() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	children := make([]string, 0, len(g.incoming))
	for child := range g.incoming {
		children = append(children, child)
	}
	sort.Strings(children)
	var out []Edge
	for _, child := range children {
		for _, p := range g.incoming[child] {
			out = append(out, Edge{Parent: p, Child: child})
		}
	}
	return out
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
