// Package bridge is the facade over the agent protocol stack: it owns the
// session registry, the permission broker and the lineage guard, and turns
// a conversation node into a streamed generation against an adapter
// subprocess.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/davidchris/thoughttree/internal/acp"
	"github.com/davidchris/thoughttree/internal/agentproc"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/logging"
	"github.com/davidchris/thoughttree/internal/permission"
	"github.com/davidchris/thoughttree/internal/provider"
	"github.com/davidchris/thoughttree/internal/session"
)

var (
	// ErrEmptyPrompt rejects a generation whose assembled context contains
	// no text at all.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrNotGenerating is returned by Cancel when the node has no
	// generation in flight.
	ErrNotGenerating = errors.New("no generation in flight for node")
)

type binding struct {
	nodeID string
	sess   *session.Session
	gen    uint64 // streaming attempt that owns this binding
}

// Bridge wires the conversation graph to adapter subprocesses. One Bridge
// per open project; the working directory is the project's notes directory
// and doubles as the permission scope root.
type Bridge struct {
	graph    *graph.Graph
	guard    *graph.LineageGuard
	sessions *session.Registry
	broker   *permission.Broker
	catalog  *provider.Catalog
	workdir  string
	events   Events
	log      *logging.Logger

	// newSession builds the start function for a provider; swapped out in
	// tests for an in-process adapter.
	newSession func(providerID string) session.StartFunc

	mu       sync.Mutex
	lastGen  uint64
	bindings map[string]binding // adapter session id -> streaming target
}

// New builds a bridge rooted at workdir. Tool calls are permission-scoped
// to workdir; adapter subprocesses run in it.
func New(g *graph.Graph, catalog *provider.Catalog, workdir string, events Events) *Bridge {
	b := &Bridge{
		graph:    g,
		guard:    graph.NewLineageGuard(g),
		sessions: session.NewRegistry(),
		broker:   permission.NewBroker(workdir, events.permissionEmitter()),
		catalog:  catalog,
		workdir:  workdir,
		events:   events,
		log:      logging.New("bridge"),
		bindings: make(map[string]binding),
	}
	b.newSession = b.startSession
	return b
}

// Guard exposes the lineage guard for callers that want to pre-check
// blocking before creating a node.
func (b *Bridge) Guard() *graph.LineageGuard { return b.guard }

// SendPrompt runs one generation into nodeID. The prompt context is the
// node's chosen-parent chain unless messages overrides it. The call blocks
// until the turn reaches a terminal stop reason; chunks stream through the
// event sink while it is blocked.
func (b *Bridge) SendPrompt(ctx context.Context, nodeID string, messages []graph.Node, providerID, modelID string) (acp.StopReason, error) {
	if providerID == "" {
		providerID = provider.DefaultID
	}
	if _, err := b.graph.Get(nodeID); err != nil {
		return acp.StopError, err
	}

	if messages == nil {
		path, err := b.graph.Path(nodeID)
		if err != nil {
			return acp.StopError, err
		}
		// The target node is the empty assistant node being generated into;
		// its ancestors are the context.
		if n := len(path); n > 0 && path[n-1].ID == nodeID {
			path = path[:n-1]
		}
		messages = path
	}
	text := flattenPrompt(messages)
	if text == "" {
		return acp.StopError, ErrEmptyPrompt
	}

	if err := b.guard.StartGeneration(nodeID); err != nil {
		return acp.StopError, err
	}
	defer b.guard.EndGeneration(nodeID)

	sess, err := b.sessions.Acquire(ctx, providerID, b.workdir, b.newSession(providerID))
	if err != nil {
		return acp.StopError, err
	}
	if err := sess.BeginPrompt(); err != nil {
		return acp.StopError, err
	}

	gen := b.bind(sess.Remote(), nodeID, sess)
	b.graph.SetStreaming(nodeID, true)
	b.graph.SetMeta(nodeID, providerID, modelID)
	defer func() {
		b.unbind(sess.Remote(), gen)
		b.graph.SetStreaming(nodeID, false)
	}()

	log := b.log.WithSession(sess.ID).WithNode(nodeID).WithProvider(providerID)
	start := time.Now()
	stop, err := sess.Conn.Prompt(ctx, sess.Remote(), []acp.ContentBlock{acp.TextBlock(text)})
	if err != nil {
		sess.Fail()
		log.Error("prompt_failed", nil, err)
		return acp.StopError, err
	}

	// A cancel already ended this attempt and the session may since carry a
	// successor prompt's binding. Only the attempt that still owns the
	// binding may move the session out of Prompting.
	if b.owns(sess.Remote(), gen) {
		if terr := sess.EndPrompt(); terr != nil && stop != acp.StopCancelled {
			return acp.StopError, terr
		}
	}
	log.TimedEvent("prompt_finished", start, map[string]any{"stop_reason": string(stop)})
	return stop, nil
}

// Cancel aborts the generation streaming into nodeID. The lineage lock is
// released and the session returned to Ready immediately; content streamed
// so far stays on the node.
func (b *Bridge) Cancel(nodeID string) error {
	b.mu.Lock()
	var remote string
	var sess *session.Session
	for r, bd := range b.bindings {
		if bd.nodeID == nodeID {
			remote, sess = r, bd.sess
			// Remove the binding here so the cancelled attempt cannot tear
			// down a successor prompt that rebinds the session; late chunks
			// for this attempt are dropped.
			delete(b.bindings, r)
			break
		}
	}
	b.mu.Unlock()

	if sess == nil {
		return fmt.Errorf("%w: %s", ErrNotGenerating, nodeID)
	}
	if err := sess.Conn.CancelSession(remote); err != nil {
		b.log.Warn("cancel_notify_failed", map[string]any{"node": nodeID}, err)
	}
	b.guard.EndGeneration(nodeID)
	b.graph.SetStreaming(nodeID, false)
	_ = sess.EndPrompt()
	b.log.WithNode(nodeID).Info("generation_cancelled", nil)
	return nil
}

// RespondToPermission resolves a pending permission request with the
// option the user chose.
func (b *Bridge) RespondToPermission(requestID, optionID string) error {
	return b.broker.Respond(requestID, optionID)
}

// CheckProviderAvailable reports whether the provider's executable resolves.
func (b *Bridge) CheckProviderAvailable(providerID string) bool {
	return b.catalog.Available(providerID)
}

// ValidateProviderPath probes an adapter executable and returns its
// version string.
func (b *Bridge) ValidateProviderPath(ctx context.Context, providerID, path string) (string, error) {
	return b.catalog.Validate(ctx, providerID, path)
}

// Close tears down every session: subprocesses killed, pending permission
// requests auto-rejected, locks released.
func (b *Bridge) Close() {
	b.mu.Lock()
	bindings := b.bindings
	b.bindings = make(map[string]binding)
	b.mu.Unlock()
	for remote, bd := range bindings {
		b.broker.CancelSession(remote)
		b.guard.EndGeneration(bd.nodeID)
		b.graph.SetStreaming(bd.nodeID, false)
	}
	b.sessions.CloseAll()
}

// bind points the adapter session at nodeID and returns a token for this
// streaming attempt. unbind and the post-prompt EndPrompt are gated on the
// token, so an attempt that lost its binding to a cancel or to a successor
// prompt on the same session cannot tear down its successor's state.
func (b *Bridge) bind(remote, nodeID string, s *session.Session) uint64 {
	b.mu.Lock()
	b.lastGen++
	gen := b.lastGen
	b.bindings[remote] = binding{nodeID: nodeID, sess: s, gen: gen}
	b.mu.Unlock()
	return gen
}

func (b *Bridge) unbind(remote string, gen uint64) {
	b.mu.Lock()
	if bd, ok := b.bindings[remote]; ok && bd.gen == gen {
		delete(b.bindings, remote)
	}
	b.mu.Unlock()
}

func (b *Bridge) owns(remote string, gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.bindings[remote]
	return ok && bd.gen == gen
}

// ── session lifecycle ──

func (b *Bridge) startSession(providerID string) session.StartFunc {
	return func(ctx context.Context, s *session.Session) error {
		path, args, err := b.catalog.Command(providerID)
		if err != nil {
			return err
		}
		if err := s.BeginInit(); err != nil {
			return err
		}

		started := time.Now()
		h, err := agentproc.Spawn(ctx, path, args, agentproc.Options{
			Dir:      s.Workdir,
			ExtraEnv: b.catalog.Env(providerID),
		})
		logging.SpawnEvent(providerID, s.Workdir, err == nil, time.Since(started), err)
		if err != nil {
			return err
		}
		s.Proc = h

		conn := acp.NewConnection(h.Stdin, h.Stdout, b.log.WithSession(s.ID).WithProvider(providerID))
		conn.HandleNotification(acp.MethodSessionUpdate, b.handleUpdate)
		conn.HandleRequest(acp.MethodRequestPermission, b.handlePermission)
		conn.OnFatal(func(err error) { b.onConnFatal(s, err) })
		conn.Start()
		s.Conn = conn

		// Subprocess death closes the pipes; EOF normally kills the
		// connection first, this covers an exit that leaves them open.
		go func() {
			<-h.Done()
			conn.Close()
		}()

		if _, err := conn.Initialize(ctx, acp.DefaultCapabilities()); err != nil {
			h.Kill()
			return err
		}
		remoteID, err := conn.NewSession(ctx, s.Workdir)
		if err != nil {
			h.Kill()
			return err
		}
		return s.MarkReady(remoteID)
	}
}

// onConnFatal handles a dead connection: the session is destroyed, never
// repaired. Pending permission requests are auto-rejected and the bound
// node's lock released so its lineage unblocks.
func (b *Bridge) onConnFatal(s *session.Session, err error) {
	s.Fail()

	remote := s.Remote()
	if remote != "" {
		b.broker.CancelSession(remote)
	}

	b.mu.Lock()
	bd, ok := b.bindings[remote]
	delete(b.bindings, remote)
	b.mu.Unlock()
	if ok {
		b.guard.EndGeneration(bd.nodeID)
		b.graph.SetStreaming(bd.nodeID, false)
	}

	b.sessions.Remove(s.Provider, s.Workdir)
	if s.Proc != nil {
		s.Proc.Kill()
	}
	if !errors.Is(err, acp.ErrConnectionClosed) {
		b.log.WithSession(s.ID).Error("session_destroyed", nil, err)
	}
}

// ── inbound dispatch ──

func (b *Bridge) handleUpdate(params json.RawMessage) {
	var note acp.SessionNotification
	if err := json.Unmarshal(params, &note); err != nil {
		b.log.Warn("undecodable_update", nil, err)
		return
	}

	switch note.Update.Kind {
	case acp.UpdateAgentMessageChunk:
		b.appendChunk(note.SessionID, note.Update.Content.Text)
	case acp.UpdateAgentThoughtChunk, acp.UpdateToolCall, acp.UpdateToolCallUpdate, acp.UpdatePlan:
		b.log.Debug("session_update", map[string]any{"kind": note.Update.Kind})
	default:
		b.log.Debug("unknown_update_kind", map[string]any{"kind": note.Update.Kind})
	}
}

func (b *Bridge) appendChunk(remote, text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	bd, ok := b.bindings[remote]
	b.mu.Unlock()
	if !ok {
		// Post-cancel stragglers or an adapter bug. Nothing to bind to.
		b.log.Debug("chunk_without_binding", map[string]any{"session": remote})
		return
	}
	if err := b.graph.AppendContent(bd.nodeID, text); err != nil {
		b.log.Warn("append_failed", map[string]any{"node": bd.nodeID}, err)
		return
	}
	b.events.emitChunk(ChunkEvent{NodeID: bd.nodeID, Chunk: text})
}

func (b *Bridge) handlePermission(ctx context.Context, params json.RawMessage) (any, error) {
	var p acp.RequestPermissionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode permission request: %w", err)
	}

	req := permission.Request{
		SessionID: p.SessionID,
		ToolName:  p.ToolCall.Title,
		Kind:      p.ToolCall.Kind,
		Args:      p.ToolCall.RawInput,
	}
	for _, loc := range p.ToolCall.Locations {
		req.Locations = append(req.Locations, loc.Path)
	}
	for _, o := range p.Options {
		req.Options = append(req.Options, permission.Option{ID: o.OptionID, Label: o.Name, Kind: o.Kind})
	}

	d := b.broker.Handle(ctx, req)
	if d.Approved {
		return acp.Selected(d.OptionID), nil
	}
	return acp.Cancelled(), nil
}

// flattenPrompt renders the context chain as role-prefixed lines, one
// message per paragraph.
func flattenPrompt(messages []graph.Node) string {
	var sb strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case graph.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(content)
	}
	return sb.String()
}
