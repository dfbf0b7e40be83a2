// Package logging provides structured JSON logging for ThoughtTree components.
//
// Events are written to stderr: stdout is never used, so processes that speak
// a stdio protocol can log freely without corrupting the frame stream.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string         `json:"ts"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Session   string         `json:"session,omitempty"`
	Node      string         `json:"node,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

var (
	outMu sync.Mutex
	out   io.Writer = os.Stderr

	debugOn atomic.Bool
)

func init() {
	debugOn.Store(os.Getenv("THOUGHTTREE_DEBUG") == "1")
}

// SetDebug toggles emission of debug-level events. The default follows
// THOUGHTTREE_DEBUG; the CLI re-applies the config snapshot on startup.
func SetDebug(on bool) {
	debugOn.Store(on)
}

// DebugEnabled reports whether debug-level events are emitted.
func DebugEnabled() bool {
	return debugOn.Load()
}

// SetOutput redirects log output. Used by tests and by the TUI, which owns
// the terminal while running.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Logger provides structured logging scoped to one component.
type Logger struct {
	component string
	session   string
	node      string
	provider  string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithSession returns a copy scoped to a session id.
func (l *Logger) WithSession(id string) *Logger {
	c := *l
	c.session = id
	return &c
}

// WithNode returns a copy scoped to a conversation node id.
func (l *Logger) WithNode(id string) *Logger {
	c := *l
	c.node = id
	return &c
}

// WithProvider returns a copy scoped to a provider id.
func (l *Logger) WithProvider(id string) *Logger {
	c := *l
	c.provider = id
	return &c
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]any, err error) {
	if level == LevelDebug && !debugOn.Load() {
		return
	}
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Node:      l.node,
		Provider:  l.provider,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	outMu.Lock()
	fmt.Fprintln(out, string(data))
	outMu.Unlock()
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]any) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an info event with duration since start.
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Node:      l.node,
		Provider:  l.provider,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	outMu.Lock()
	fmt.Fprintln(out, string(data))
	outMu.Unlock()
}

// SpawnEvent logs an adapter subprocess spawn.
func SpawnEvent(provider, dir string, success bool, duration time.Duration, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: "agentproc",
		Event:     "spawn",
		Provider:  provider,
		Duration:  duration.Milliseconds(),
		Extra: map[string]any{
			"dir":     dir,
			"success": success,
		},
	}

	if err != nil {
		e.Level = LevelError
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	outMu.Lock()
	fmt.Fprintln(out, string(data))
	outMu.Unlock()
}
