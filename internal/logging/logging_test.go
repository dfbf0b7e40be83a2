package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func decodeOne(t *testing.T, buf *bytes.Buffer) Event {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var e Event
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	return e
}

func TestEventShape(t *testing.T) {
	buf := capture(t)

	New("bridge").WithSession("s1").WithNode("n1").WithProvider("claude").
		Warn("prompt_failed", map[string]any{"attempt": 1}, errors.New("boom"))

	e := decodeOne(t, buf)
	assert.Equal(t, LevelWarn, e.Level)
	assert.Equal(t, "bridge", e.Component)
	assert.Equal(t, "prompt_failed", e.Event)
	assert.Equal(t, "s1", e.Session)
	assert.Equal(t, "n1", e.Node)
	assert.Equal(t, "claude", e.Provider)
	assert.Equal(t, "boom", e.Error)
	assert.EqualValues(t, 1, e.Extra["attempt"])

	_, err := time.Parse(time.RFC3339, e.Timestamp)
	assert.NoError(t, err)
}

func TestWithDerivationDoesNotMutateParent(t *testing.T) {
	buf := capture(t)

	base := New("session")
	scoped := base.WithSession("s1")
	base.Info("base_event", nil)
	scoped.Info("scoped_event", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Empty(t, first.Session)
	assert.Equal(t, "s1", second.Session)
}

func TestTimedEventRecordsDuration(t *testing.T) {
	buf := capture(t)

	start := time.Now().Add(-25 * time.Millisecond)
	New("bridge").TimedEvent("prompt_finished", start, nil)

	e := decodeOne(t, buf)
	assert.GreaterOrEqual(t, e.Duration, int64(20))
}

func TestSpawnEventFailure(t *testing.T) {
	buf := capture(t)

	SpawnEvent("claude", "/w", false, 10*time.Millisecond, errors.New("not found"))

	e := decodeOne(t, buf)
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "spawn", e.Event)
	assert.Equal(t, "not found", e.Error)
	assert.Equal(t, false, e.Extra["success"])
}

func TestDebugGatedBySwitch(t *testing.T) {
	buf := capture(t)
	prev := DebugEnabled()
	t.Cleanup(func() { SetDebug(prev) })

	SetDebug(false)
	New("acp").Debug("unhandled_notification", map[string]any{"method": "x"})
	assert.Empty(t, buf.String())

	SetDebug(true)
	New("acp").Debug("unhandled_notification", map[string]any{"method": "x"})
	e := decodeOne(t, buf)
	assert.Equal(t, LevelDebug, e.Level)

	// Other levels are never gated.
	buf.Reset()
	SetDebug(false)
	New("acp").Info("tick", nil)
	assert.NotEmpty(t, buf.String())
}

func TestOneJSONObjectPerLine(t *testing.T) {
	buf := capture(t)

	log := New("test")
	for i := 0; i < 5; i++ {
		log.Info("tick", nil)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		var e Event
		assert.NoError(t, json.Unmarshal([]byte(line), &e))
	}
}
