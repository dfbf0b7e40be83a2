package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/davidchris/thoughttree/internal/acp"
	"github.com/davidchris/thoughttree/internal/agentproc"
	"github.com/davidchris/thoughttree/internal/logging"
)

// Session binds one agent subprocess, its protocol connection, and the
// remote session id the adapter assigned. All state transitions go through
// the methods below; the zero State is Uninitialized.
type Session struct {
	ID       string
	Provider string
	Workdir  string

	Proc     *agentproc.Handle
	Conn     *acp.Connection
	RemoteID string // adapter-assigned, set once Ready

	CreatedAt time.Time

	mu    sync.Mutex
	state State
	log   *logging.Logger
}

// New returns a fresh Uninitialized session with a generated local id.
func New(provider, workdir string, log *logging.Logger) *Session {
	id := ulid.Make().String()
	return &Session{
		ID:        id,
		Provider:  provider,
		Workdir:   workdir,
		CreatedAt: time.Now(),
		log:       log.WithSession(id).WithProvider(provider),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowed(s.state, to) {
		return &InvalidStateError{SessionID: s.ID, State: s.state, Op: op}
	}
	if s.state != to {
		s.log.Debug("state_transition", map[string]any{
			"from": s.state.String(),
			"to":   to.String(),
		})
	}
	s.state = to
	return nil
}

// BeginInit moves Uninitialized -> Initializing.
func (s *Session) BeginInit() error { return s.transition(Initializing, "initialize") }

// MarkReady moves Initializing -> Ready and records the adapter session id.
func (s *Session) MarkReady(remoteID string) error {
	if err := s.transition(Ready, "mark ready"); err != nil {
		return err
	}
	s.mu.Lock()
	s.RemoteID = remoteID
	s.mu.Unlock()
	return nil
}

// BeginPrompt moves Ready -> Prompting. Any other state rejects the prompt.
func (s *Session) BeginPrompt() error { return s.transition(Prompting, "prompt") }

// EndPrompt moves Prompting -> Ready after a terminal stop reason.
func (s *Session) EndPrompt() error { return s.transition(Ready, "finish prompt") }

// Fail forces the session into the terminal Error state. Safe from any
// non-terminal state; a no-op if already failed.
func (s *Session) Fail() {
	_ = s.transition(StateError, "fail")
}

// Close moves the session to Closed and kills the subprocess if one is
// still attached. Closing an already-terminal session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	proc := s.Proc
	s.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	s.log.Info("session_closed", nil)
}

// Remote returns the adapter-assigned session id, empty before Ready.
func (s *Session) Remote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RemoteID
}
