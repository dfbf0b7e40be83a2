package session

import (
	"context"
	"sync"

	"github.com/davidchris/thoughttree/internal/logging"
)

// StartFunc builds and initializes a session through to Ready. The registry
// calls it at most once per live (provider, workdir) pair.
type StartFunc func(ctx context.Context, s *Session) error

// Registry caches sessions keyed by provider id and working directory so
// repeated prompts against the same pair reuse one subprocess. Sessions
// that reached a terminal state are replaced on next acquire.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	log      *logging.Logger
}

type entry struct {
	s    *Session
	done chan struct{} // closed once the start attempt finished
	err  error
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		log:      logging.New("session"),
	}
}

func key(provider, workdir string) string {
	return provider + "\x00" + workdir
}

// Acquire returns the live session for (provider, workdir), creating and
// starting one if none exists. Concurrent acquirers of the same pair share
// one start attempt; a failed or terminated session is discarded so the
// next call starts fresh.
func (r *Registry) Acquire(ctx context.Context, provider, workdir string, start StartFunc) (*Session, error) {
	k := key(provider, workdir)

	r.mu.Lock()
	e, ok := r.sessions[k]
	if ok {
		select {
		case <-e.done:
			if e.err == nil && !e.s.State().Terminal() {
				r.mu.Unlock()
				return e.s, nil
			}
			// Stale entry, fall through and restart.
		default:
			// Start in flight, wait for it outside the lock.
			r.mu.Unlock()
			select {
			case <-e.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if e.err != nil {
				return nil, e.err
			}
			return e.s, nil
		}
	}

	e = &entry{
		s:    New(provider, workdir, r.log),
		done: make(chan struct{}),
	}
	r.sessions[k] = e
	r.mu.Unlock()

	e.err = start(ctx, e.s)
	close(e.done)
	if e.err != nil {
		e.s.Fail()
		r.mu.Lock()
		if r.sessions[k] == e {
			delete(r.sessions, k)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.s, nil
}

// Lookup returns the session for the pair without creating one.
func (r *Registry) Lookup(provider, workdir string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[key(provider, workdir)]
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		if e.err != nil {
			return nil, false
		}
		return e.s, true
	default:
		return nil, false
	}
}

// ByRemote finds the session the adapter knows under remoteID.
func (r *Registry) ByRemote(remoteID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sessions {
		select {
		case <-e.done:
			if e.err == nil && e.s.Remote() == remoteID {
				return e.s, true
			}
		default:
		}
	}
	return nil, false
}

// Remove drops the session for the pair from the registry and closes it.
func (r *Registry) Remove(provider, workdir string) {
	k := key(provider, workdir)
	r.mu.Lock()
	e, ok := r.sessions[k]
	delete(r.sessions, k)
	r.mu.Unlock()
	if ok {
		select {
		case <-e.done:
			e.s.Close()
		default:
		}
	}
}

// CloseAll tears down every live session. Used at project close and exit.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.done:
			e.s.Close()
		default:
		}
	}
}

// Len reports the number of cached entries, live or in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
