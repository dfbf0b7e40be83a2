package permission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/davidchris/thoughttree/internal/logging"
	"github.com/davidchris/thoughttree/internal/textutil"
)

// ErrNotFound indicates a respond call named an id that is unknown: already
// resolved, auto-rejected at teardown, or never issued. The caller cannot
// tell these apart.
var ErrNotFound = errors.New("no pending permission request with that id")

// Request is a tool-permission request as seen by the broker, decoupled
// from the wire representation.
type Request struct {
	SessionID string
	ToolName  string
	Kind      string
	Locations []string       // filesystem paths the tool call names
	Args      map[string]any // raw tool input, shown when no locations exist
	Options   []Option
}

// Option is one choice offered by the agent.
type Option struct {
	ID    string
	Label string
	Kind  string
}

// Event is what the broker emits to the caller's UI for a prompt-user
// request.
type Event struct {
	ID           string
	ToolCategory Category
	ToolName     string
	Description  string
	Options      []Option
}

// Decision is the broker's answer for one request.
type Decision struct {
	Approved bool
	OptionID string // set when Approved
}

type pendingReq struct {
	sessionID string
	ch        chan string // buffered; carries the chosen option id, "" = reject
}

// Broker applies permission policy. Prompt-user requests live in a
// process-wide pending table from arrival until a decision or the owning
// session's teardown resolves them.
type Broker struct {
	root string // canonicalized project root
	emit func(Event)
	log  *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingReq
}

// NewBroker creates a broker scoping approvals to root. emit delivers
// prompt-user events to the caller; it must not block.
func NewBroker(root string, emit func(Event)) *Broker {
	canon, err := filepath.Abs(root)
	if err == nil {
		if resolved, rerr := filepath.EvalSymlinks(canon); rerr == nil {
			canon = resolved
		}
	} else {
		canon = root
	}
	return &Broker{
		root:    canon,
		emit:    emit,
		log:     logging.New("permission"),
		pending: make(map[string]*pendingReq),
	}
}

// Handle applies policy to one request and blocks until a decision exists.
// For prompt-user requests that wait is unbounded; it ends only when the
// user responds or ctx is cancelled (connection death, session teardown).
func (b *Broker) Handle(ctx context.Context, req Request) Decision {
	cat := CategoryOf(req.ToolName)
	if cat == CategoryUnknown && req.Kind != "" {
		cat = CategoryOf(req.Kind)
	}

	switch DispositionOf(cat) {
	case AutoDeny:
		b.log.Info("auto_denied", map[string]any{"tool": req.ToolName, "category": string(cat)})
		return Decision{Approved: false}

	case AutoApproveScoped:
		if reason := b.scopeViolation(req.Locations); reason != "" {
			// Downgraded, not denied: the user gets to make the call.
			b.log.Warn("scope_downgrade", map[string]any{
				"tool":   req.ToolName,
				"reason": reason,
			}, nil)
			return b.prompt(ctx, cat, req)
		}
		if len(req.Options) == 0 {
			return Decision{Approved: false}
		}
		b.log.Debug("auto_approved", map[string]any{"tool": req.ToolName})
		return Decision{Approved: true, OptionID: firstAllowOption(req.Options)}

	default:
		return b.prompt(ctx, cat, req)
	}
}

// Respond resolves a pending request with the chosen option. An empty
// optionID rejects. Unknown ids fail with ErrNotFound and mutate nothing.
func (b *Broker) Respond(requestID, optionID string) error {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	p.ch <- optionID
	return nil
}

// CancelSession auto-rejects every pending request owned by a session.
// Called on session teardown.
func (b *Broker) CancelSession(sessionID string) {
	b.mu.Lock()
	var cancelled []*pendingReq
	for id, p := range b.pending {
		if p.sessionID == sessionID {
			delete(b.pending, id)
			cancelled = append(cancelled, p)
		}
	}
	b.mu.Unlock()

	for _, p := range cancelled {
		p.ch <- ""
	}
	if len(cancelled) > 0 {
		b.log.Info("pending_auto_rejected", map[string]any{
			"session": sessionID,
			"count":   len(cancelled),
		})
	}
}

// PendingCount returns the size of the pending table.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) prompt(ctx context.Context, cat Category, req Request) Decision {
	id := uuid.NewString()
	p := &pendingReq{sessionID: req.SessionID, ch: make(chan string, 1)}

	b.mu.Lock()
	b.pending[id] = p
	b.mu.Unlock()

	if b.emit != nil {
		b.emit(Event{
			ID:           id,
			ToolCategory: cat,
			ToolName:     req.ToolName,
			Description:  describe(req),
			Options:      req.Options,
		})
	}

	select {
	case optionID := <-p.ch:
		if optionID == "" {
			return Decision{Approved: false}
		}
		return Decision{Approved: true, OptionID: optionID}
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return Decision{Approved: false}
	}
}

// scopeViolation canonicalizes every location and checks it is a strict
// descendant of the project root, following symlinks. Returns "" when all
// locations pass, otherwise a reason.
func (b *Broker) scopeViolation(locations []string) string {
	for _, loc := range locations {
		if loc == "" {
			continue
		}
		p := loc
		if !filepath.IsAbs(p) {
			p = filepath.Join(b.root, p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Sprintf("cannot canonicalize %s: %v", loc, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			// Cannot prove where the path really points; let the user decide.
			return fmt.Sprintf("cannot resolve %s: %v", loc, err)
		}
		abs = resolved
		rel, err := filepath.Rel(b.root, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Sprintf("%s is outside the project root", loc)
		}
	}
	return ""
}

func describe(req Request) string {
	if len(req.Locations) > 0 {
		return textutil.Truncate(strings.Join(req.Locations, ", "), maxDescription)
	}
	if len(req.Args) > 0 {
		return textutil.TruncateMap(req.Args, maxDescription)
	}
	return "No additional details"
}

// maxDescription caps the prompt description shown in the permission
// overlay; one line, never a whole file body.
const maxDescription = 120

// firstAllowOption prefers an option the agent marks as an allow kind,
// falling back to the first offered.
func firstAllowOption(opts []Option) string {
	for _, o := range opts {
		if strings.HasPrefix(o.Kind, "allow") {
			return o.ID
		}
	}
	return opts[0].ID
}
