// Package runtime provides graceful shutdown handling for the CLI process.
//
// Teardown order matters here: the TUI must restore the terminal before
// anything prints, agent subprocesses must be killed before the store
// closes, and the store closes last. Handlers therefore run sequentially
// in reverse registration order.
package runtime

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davidchris/thoughttree/internal/logging"
)

// ShutdownFunc is a cleanup function called during shutdown.
type ShutdownFunc func(ctx context.Context) error

// DefaultShutdownTimeout bounds the total time spent in cleanup.
const DefaultShutdownTimeout = 10 * time.Second

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered cleanup handlers exactly once, in
// reverse registration order, when Shutdown is called or a terminating
// signal arrives.
type ShutdownManager struct {
	mu       sync.Mutex
	handlers []namedHandler
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	log      *logging.Logger
}

// NewShutdownManager creates a shutdown manager with the given cleanup timeout.
func NewShutdownManager(timeout time.Duration) *ShutdownManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     logging.New("runtime"),
	}
}

// Register adds a cleanup handler. Handlers run in reverse registration
// order, so register long-lived resources first.
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a cleanup function with no error return.
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context returns a context that is cancelled when shutdown begins.
func (m *ShutdownManager) Context() context.Context {
	return m.ctx
}

// Done returns a channel closed when all handlers have finished.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// ListenForSignals starts a goroutine that triggers shutdown on
// SIGTERM or SIGINT. Call once at startup.
func (m *ShutdownManager) ListenForSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigs
		m.log.Info("signal_received", map[string]any{"signal": sig.String()})
		m.Shutdown()
	}()
}

// Shutdown runs the cleanup handlers. Safe to call multiple times; only
// the first call does work, later calls return once it completes.
func (m *ShutdownManager) Shutdown() {
	m.once.Do(m.run)
	<-m.done
}

func (m *ShutdownManager) run() {
	defer close(m.done)

	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := make([]namedHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]

		if ctx.Err() != nil {
			m.log.Warn("shutdown_timeout", map[string]any{"skipped": h.name}, ctx.Err())
			continue
		}

		start := time.Now()
		if err := h.fn(ctx); err != nil {
			m.log.Error("shutdown_handler_failed", map[string]any{
				"handler":     h.name,
				"duration_ms": time.Since(start).Milliseconds(),
			}, err)
			continue
		}
		m.log.Debug("shutdown_handler_done", map[string]any{
			"handler":     h.name,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
