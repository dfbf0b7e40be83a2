package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/davidchris/thoughttree/internal/bridge"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/permission"
)

// Relay forwards bridge events into the Bubble Tea program. The bridge
// is constructed before the program exists, so the relay buffers nothing
// and simply drops events until Attach is called.
type Relay struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewRelay creates an unattached relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Events returns the bridge callbacks backed by this relay.
func (r *Relay) Events() bridge.Events {
	return bridge.Events{
		OnChunk: func(ev bridge.ChunkEvent) {
			r.send(chunkMsg(ev))
		},
		OnPermission: func(ev permission.Event) {
			r.send(permissionMsg(ev))
		},
	}
}

// Attach binds the relay to a running program.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
}

func (r *Relay) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Run starts the interactive chat. leafID may name a node to resume
// from; empty starts a fresh conversation. Blocks until the user quits.
func Run(g *graph.Graph, br *bridge.Bridge, relay *Relay, providerID, workdir, leafID string) error {
	model := NewChatModel(g, br, providerID, workdir, leafID)

	p := tea.NewProgram(model, tea.WithAltScreen())
	relay.Attach(p)

	_, err := p.Run()
	return err
}
