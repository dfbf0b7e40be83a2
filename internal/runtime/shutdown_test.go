package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHandlers(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var called int32
	m.Register("store", func(context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	m.Shutdown()
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestShutdownRegisterSimple(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	called := false
	m.RegisterSimple("tui", func() { called = true })

	m.Shutdown()
	assert.True(t, called)
}

func TestShutdownReverseOrder(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var order []string
	for _, name := range []string{"store", "sessions", "tui"} {
		name := name
		m.RegisterSimple(name, func() { order = append(order, name) })
	}

	m.Shutdown()
	require.Equal(t, []string{"tui", "sessions", "store"}, order)
}

func TestShutdownIdempotent(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var called int32
	m.Register("once", func(context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestShutdownContinuesPastFailure(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	var reached bool
	m.RegisterSimple("last", func() { reached = true })
	m.Register("broken", func(context.Context) error {
		return errors.New("close failed")
	})

	m.Shutdown()
	assert.True(t, reached)
}

func TestShutdownCancelsContext(t *testing.T) {
	m := NewShutdownManager(5 * time.Second)

	require.NoError(t, m.Context().Err())
	m.Shutdown()
	assert.ErrorIs(t, m.Context().Err(), context.Canceled)
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	m := NewShutdownManager(50 * time.Millisecond)

	var skipped int32
	m.Register("never-runs", func(context.Context) error {
		atomic.AddInt32(&skipped, 1)
		return nil
	})
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return after timeout")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&skipped))
}

func TestDoneClosedAfterShutdown(t *testing.T) {
	m := NewShutdownManager(time.Second)

	select {
	case <-m.Done():
		t.Fatal("done closed before shutdown")
	default:
	}

	m.Shutdown()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after shutdown")
	}
}
