// Package agentproc spawns and supervises agent adapter subprocesses.
// Each session owns exactly one subprocess; the supervisor never multiplexes
// sessions onto a shared process.
package agentproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/davidchris/thoughttree/internal/logging"
)

// DefaultGracePeriod is how long a freshly spawned process gets to stay
// alive before Spawn reports success. Adapters that die instantly (missing
// runtime, bad install) are caught here instead of surfacing later as an
// opaque pipe error.
const DefaultGracePeriod = 300 * time.Millisecond

// SpawnError indicates the adapter executable could not be started:
// missing, not executable, or exited within the grace period.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnError reports whether err is a spawn failure.
func IsSpawnError(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// Options tune a spawn.
type Options struct {
	// Dir is the subprocess working directory (the project's notes root).
	Dir string

	// ExtraEnv entries are appended to the inherited environment, e.g. the
	// provider credential when no interactive login session exists.
	ExtraEnv []string

	// GracePeriod overrides DefaultGracePeriod when > 0.
	GracePeriod time.Duration
}

// Handle owns a running subprocess and its pipes. Stdout carries protocol
// traffic only; stderr is drained to the structured log in the background.
type Handle struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser

	cmd  *exec.Cmd
	log  *logging.Logger
	done chan struct{}

	mu      sync.Mutex
	exitErr error
	killed  bool
}

// Spawn starts the adapter executable with stdin/stdout piped. It fails
// with SpawnError if the executable cannot be found or started, or if the
// process exits within the grace period.
func Spawn(ctx context.Context, path string, args []string, opts Options) (*Handle, error) {
	start := time.Now()
	log := logging.New("agentproc")

	resolved, err := exec.LookPath(path)
	if err != nil {
		logging.SpawnEvent(path, opts.Dir, false, time.Since(start), err)
		return nil, &SpawnError{Path: path, Err: err}
	}

	cmd := exec.CommandContext(ctx, resolved, args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.ExtraEnv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		logging.SpawnEvent(path, opts.Dir, false, time.Since(start), err)
		return nil, &SpawnError{Path: path, Err: err}
	}

	h := &Handle{
		Stdin:  stdin,
		Stdout: stdout,
		cmd:    cmd,
		log:    log,
		done:   make(chan struct{}),
	}

	go h.drainStderr(stderr)
	go h.wait()

	grace := opts.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	select {
	case <-h.done:
		err := h.ExitErr()
		if err == nil {
			err = errors.New("process exited immediately")
		}
		logging.SpawnEvent(path, opts.Dir, false, time.Since(start), err)
		return nil, &SpawnError{Path: path, Err: err}
	case <-time.After(grace):
	}

	logging.SpawnEvent(path, opts.Dir, true, time.Since(start), nil)
	return h, nil
}

// Done is closed when the subprocess has exited for any reason.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the process exit error after Done is closed; nil for a
// clean exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Killed reports whether the supervisor terminated the process itself.
func (h *Handle) Killed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

// Kill terminates the subprocess and guarantees it is not left running.
// Safe to call more than once and after exit.
func (h *Handle) Kill() {
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()

	h.Stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	<-h.done
}

// Pid returns the subprocess pid, for diagnostics.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	killed := h.killed
	h.mu.Unlock()
	close(h.done)

	if err != nil && !killed {
		h.log.Warn("process_exited", map[string]any{"pid": h.Pid()}, err)
	}
}

// drainStderr forwards adapter diagnostics to the structured log so the
// protocol stream on stdout stays clean.
func (h *Handle) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 16*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.log.Debug("adapter_stderr", map[string]any{"line": line})
	}
}
