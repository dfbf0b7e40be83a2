package graph

import (
	"errors"
	"fmt"
)

// Graph errors.
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateNode = errors.New("node already exists")
	ErrInvalidNode   = errors.New("invalid node")
	ErrCycle         = errors.New("edge would create a chosen-parent cycle")

	// ErrBlocked indicates a generation was refused because the target node
	// shares an ancestor/descendant path with an active generation.
	ErrBlocked = errors.New("lineage is already generating")
)

// ConcurrencyError carries the conflict details behind ErrBlocked.
type ConcurrencyError struct {
	NodeID   string
	Blocking string // the active node on the same lineage
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("node %s blocked by active generation on %s", e.NodeID, e.Blocking)
}

func (e *ConcurrencyError) Unwrap() error { return ErrBlocked }

// IsBlocked reports whether err is a lineage-blocking conflict.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}
