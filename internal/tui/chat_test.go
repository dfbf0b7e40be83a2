package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidchris/thoughttree/internal/bridge"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/permission"
	"github.com/davidchris/thoughttree/internal/provider"
)

func newTestModel(t *testing.T) (ChatModel, *graph.Graph) {
	t.Helper()
	g := graph.New()
	br := bridge.New(g, provider.NewCatalog(nil, nil), t.TempDir(), bridge.Events{})
	m := NewChatModel(g, br, "claude", t.TempDir(), "")

	// Size the viewport so the model is ready.
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(ChatModel), g
}

func typeAndEnter(t *testing.T, m ChatModel, text string) ChatModel {
	t.Helper()
	m.input.SetValue(text)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(ChatModel)
}

func TestSubmitAppendsUserAndAssistantNodes(t *testing.T) {
	m, g := newTestModel(t)

	m = typeAndEnter(t, m, "first question")

	require.Equal(t, 2, g.Len())
	assert.True(t, m.busy)
	assert.NotEmpty(t, m.generatingID)
	assert.Equal(t, m.generatingID, m.leafID)

	path, err := g.Path(m.leafID)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, graph.RoleUser, path[0].Role)
	assert.Equal(t, "first question", path[0].Content)
	assert.Equal(t, graph.RoleAssistant, path[1].Role)
}

func TestSubmitIgnoredWhileBusy(t *testing.T) {
	m, g := newTestModel(t)

	m = typeAndEnter(t, m, "first")
	require.Equal(t, 2, g.Len())

	m = typeAndEnter(t, m, "second while busy")
	assert.Equal(t, 2, g.Len())
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	m, g := newTestModel(t)

	m = typeAndEnter(t, m, "   \n  ")
	assert.Equal(t, 0, g.Len())
	assert.False(t, m.busy)
}

func TestChunksRenderIntoTranscript(t *testing.T) {
	m, g := newTestModel(t)
	m = typeAndEnter(t, m, "tell me a story")

	require.NoError(t, g.AppendContent(m.generatingID, "once upon"))
	next, _ := m.Update(chunkMsg{NodeID: m.generatingID, Chunk: "once upon"})
	m = next.(ChatModel)

	assert.Contains(t, m.transcript(), "once upon")
	assert.Contains(t, m.transcript(), "tell me a story")
}

func TestPromptDoneClearsBusy(t *testing.T) {
	m, _ := newTestModel(t)
	m = typeAndEnter(t, m, "hello")

	next, _ := m.Update(promptDoneMsg{})
	m = next.(ChatModel)

	assert.False(t, m.busy)
	assert.Empty(t, m.generatingID)
}

func TestRegenerateBranchesSiblingAssistant(t *testing.T) {
	m, g := newTestModel(t)
	m = typeAndEnter(t, m, "question")

	firstAnswer := m.leafID
	next, _ := m.Update(promptDoneMsg{})
	m = next.(ChatModel)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = next.(ChatModel)

	require.True(t, m.busy)
	require.NotEqual(t, firstAnswer, m.leafID)

	// Both answers hang off the same user node.
	assert.Equal(t, g.ChosenParent(firstAnswer), g.ChosenParent(m.leafID))
	assert.Equal(t, 3, g.Len())
}

func TestPermissionPromptQueues(t *testing.T) {
	m, _ := newTestModel(t)

	first := permission.Event{ID: "req-1", Description: "Fetch https://a"}
	second := permission.Event{ID: "req-2", Description: "Fetch https://b"}

	next, _ := m.Update(permissionMsg(first))
	m = next.(ChatModel)
	next, _ = m.Update(permissionMsg(second))
	m = next.(ChatModel)

	require.NotNil(t, m.perm)
	assert.Equal(t, "req-1", m.perm.ID)
	require.Len(t, m.permQueue, 1)

	// Rejecting the first surfaces the queued one.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(ChatModel)
	require.NotNil(t, m.perm)
	assert.Equal(t, "req-2", m.perm.ID)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(ChatModel)
	assert.Nil(t, m.perm)
}

func TestViewShowsPermissionOptions(t *testing.T) {
	m, _ := newTestModel(t)

	ev := permission.Event{
		ID:          "req-1",
		Description: "Fetch https://example.com",
		Options: []permission.Option{
			{ID: "allow", Label: "Allow"},
			{ID: "reject", Label: "Reject"},
		},
	}
	next, _ := m.Update(permissionMsg(ev))
	m = next.(ChatModel)

	view := m.View()
	assert.Contains(t, view, "Fetch https://example.com")
	assert.Contains(t, view, "1) Allow")
	assert.Contains(t, view, "2) Reject")
}

func TestRelayDropsEventsWhenUnattached(t *testing.T) {
	r := NewRelay()
	ev := r.Events()

	// Must not panic with no program attached.
	ev.OnChunk(bridge.ChunkEvent{NodeID: "n", Chunk: "x"})
	ev.OnPermission(permission.Event{ID: "p"})
}
