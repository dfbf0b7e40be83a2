package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/storage"
)

func init() {
	color.NoColor = true
}

func buildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{ID: "u1", Role: graph.RoleUser, Content: "What is a monad?"}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "a1", Role: graph.RoleAssistant, Content: "A monad is a structure.", Provider: "claude"}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "a2", Role: graph.RoleAssistant, Content: "Alternative answer."}))
	require.NoError(t, g.AddEdge("u1", "a1"))
	require.NoError(t, g.AddEdge("u1", "a2"))
	return g
}

func TestConversationRendersPath(t *testing.T) {
	g := buildGraph(t)
	r := New(false)

	out, err := r.Conversation(g, "a1")
	require.NoError(t, err)

	assert.Contains(t, out, "## User")
	assert.Contains(t, out, "What is a monad?")
	assert.Contains(t, out, "## Assistant (claude)")
	assert.Contains(t, out, "A monad is a structure.")
	assert.NotContains(t, out, "Alternative answer.")
}

func TestConversationUnknownNode(t *testing.T) {
	g := graph.New()
	_, err := New(false).Conversation(g, "nope")
	assert.Error(t, err)
}

func TestTreeShowsBothBranches(t *testing.T) {
	g := buildGraph(t)
	out := New(false).Tree(g)

	assert.Contains(t, out, "What is a monad?")
	assert.Contains(t, out, "A monad is a structure.")
	assert.Contains(t, out, "Alternative answer.")
	// Branches are indented one level under the root.
	assert.Contains(t, out, "  • [assistant]")
}

func TestTreeEmptyGraph(t *testing.T) {
	out := New(true).Tree(graph.New())
	assert.Equal(t, "Empty conversation\n", out)
}

func TestProvidersPlain(t *testing.T) {
	rows := []ProviderRow{
		{ID: "claude", Command: "npx", Available: true},
		{ID: "custom", Command: "/opt/agent", Available: false},
	}
	out := New(false).Providers(rows)
	assert.Contains(t, out, "claude available npx")
	assert.Contains(t, out, "custom missing /opt/agent")
}

func TestProjectsNewestFirstVerbatim(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	out := New(false).Projects([]storage.Project{
		{ID: "p1", Name: "thesis", UpdatedAt: ts},
	})
	assert.Contains(t, out, "[2026-03-01 09:30] p1 thesis")
}

func TestProjectsEmpty(t *testing.T) {
	assert.Equal(t, "No projects found\n", New(false).Projects(nil))
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, "tokens=120 nodes=4\n", New(false).TokenCount(120, 4))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "2.5s", FormatDuration(2500*time.Millisecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestWriterHelpers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Section("checks")
	w.Item("%s provider binary", BoolIcon(true))
	w.Nested("missing: %s", Truncate("a very long explanation of the problem", 20))

	out := buf.String()
	assert.Contains(t, out, "CHECKS:")
	assert.Contains(t, out, "  ✓ provider binary")
	assert.Contains(t, out, "└─ missing: a very long expla...")
}
