package bridge

import "github.com/davidchris/thoughttree/internal/permission"

// ChunkEvent carries one streamed piece of assistant text, already appended
// to the node it belongs to.
type ChunkEvent struct {
	NodeID string
	Chunk  string
}

// Events is the caller-facing event surface. Callbacks may be nil; chunk
// callbacks are invoked on the connection read loop and must not block.
type Events struct {
	OnChunk      func(ChunkEvent)
	OnPermission func(permission.Event)
}

func (e Events) emitChunk(ev ChunkEvent) {
	if e.OnChunk != nil {
		e.OnChunk(ev)
	}
}

func (e Events) permissionEmitter() func(permission.Event) {
	return func(ev permission.Event) {
		if e.OnPermission != nil {
			e.OnPermission(ev)
		}
	}
}
