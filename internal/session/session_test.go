package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidchris/thoughttree/internal/logging"
)

func testLogger() *logging.Logger { return logging.New("test") }

func TestLifecycleHappyPath(t *testing.T) {
	s := New("claude", "/tmp/work", testLogger())
	assert.Equal(t, Uninitialized, s.State())

	require.NoError(t, s.BeginInit())
	require.NoError(t, s.MarkReady("sess-remote-1"))
	assert.Equal(t, Ready, s.State())
	assert.Equal(t, "sess-remote-1", s.Remote())

	require.NoError(t, s.BeginPrompt())
	assert.Equal(t, Prompting, s.State())
	require.NoError(t, s.EndPrompt())
	assert.Equal(t, Ready, s.State())
}

func TestPromptRejectedUnlessReady(t *testing.T) {
	s := New("claude", "/tmp/work", testLogger())

	err := s.BeginPrompt()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))

	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, Uninitialized, ise.State)
	assert.Equal(t, s.ID, ise.SessionID)
}

func TestPromptRejectedWhilePrompting(t *testing.T) {
	s := New("claude", "/tmp/work", testLogger())
	require.NoError(t, s.BeginInit())
	require.NoError(t, s.MarkReady("r1"))
	require.NoError(t, s.BeginPrompt())

	err := s.BeginPrompt()
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestTerminalStatesAbsorb(t *testing.T) {
	s := New("claude", "/tmp/work", testLogger())
	require.NoError(t, s.BeginInit())
	require.NoError(t, s.MarkReady("r1"))

	s.Fail()
	assert.Equal(t, StateError, s.State())

	// No transition leaves Error, including Close.
	s.Close()
	assert.Equal(t, StateError, s.State())
	assert.True(t, errors.Is(s.BeginPrompt(), ErrInvalidState))
}

func TestCloseIdempotent(t *testing.T) {
	s := New("claude", "/tmp/work", testLogger())
	s.Close()
	s.Close()
	assert.Equal(t, Closed, s.State())
}

func TestFailFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range []func(*Session){
		func(s *Session) {},
		func(s *Session) { _ = s.BeginInit() },
		func(s *Session) { _ = s.BeginInit(); _ = s.MarkReady("r") },
		func(s *Session) { _ = s.BeginInit(); _ = s.MarkReady("r"); _ = s.BeginPrompt() },
	} {
		s := New("claude", "/tmp/work", testLogger())
		setup(s)
		s.Fail()
		assert.Equal(t, StateError, s.State())
	}
}

func TestRegistryReusesSession(t *testing.T) {
	r := NewRegistry()
	starts := 0
	start := func(ctx context.Context, s *Session) error {
		starts++
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("remote-a")
	}

	ctx := context.Background()
	a, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)
	b, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, starts)
}

func TestRegistryDistinctPairsGetDistinctSessions(t *testing.T) {
	r := NewRegistry()
	start := func(ctx context.Context, s *Session) error {
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("remote-" + s.Workdir)
	}

	ctx := context.Background()
	a, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)
	b, err := r.Acquire(ctx, "claude", "/p2", start)
	require.NoError(t, err)
	c, err := r.Acquire(ctx, "gemini", "/p1", start)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryReplacesFailedSession(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	boom := errors.New("spawn failed")

	_, err := r.Acquire(ctx, "claude", "/p1", func(ctx context.Context, s *Session) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())

	s, err := r.Acquire(ctx, "claude", "/p1", func(ctx context.Context, s *Session) error {
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("remote-b")
	})
	require.NoError(t, err)
	assert.Equal(t, Ready, s.State())
}

func TestRegistryReplacesTerminatedSession(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	start := func(ctx context.Context, s *Session) error {
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("remote-c")
	}

	a, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)
	a.Fail()

	b, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, Ready, b.State())
}

func TestRegistryByRemote(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	_, err := r.Acquire(ctx, "claude", "/p1", func(ctx context.Context, s *Session) error {
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("remote-x")
	})
	require.NoError(t, err)

	s, ok := r.ByRemote("remote-x")
	require.True(t, ok)
	assert.Equal(t, "remote-x", s.Remote())

	_, ok = r.ByRemote("remote-missing")
	assert.False(t, ok)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	start := func(ctx context.Context, s *Session) error {
		if err := s.BeginInit(); err != nil {
			return err
		}
		return s.MarkReady("r")
	}
	a, err := r.Acquire(ctx, "claude", "/p1", start)
	require.NoError(t, err)
	b, err := r.Acquire(ctx, "claude", "/p2", start)
	require.NoError(t, err)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, Closed, a.State())
	assert.Equal(t, Closed, b.State())
}
