package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNode(t *testing.T, g *Graph, id string, role Role, content string) {
	t.Helper()
	require.NoError(t, g.AddNode(&Node{ID: id, Role: role, Content: content, Timestamp: time.Now()}))
}

// chain builds a linear conversation a -> b -> c -> ... and returns nothing;
// ids are the caller's.
func chain(t *testing.T, g *Graph, ids ...string) {
	t.Helper()
	for i, id := range ids {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		addNode(t, g, id, role, "msg "+id)
		if i > 0 {
			require.NoError(t, g.AddEdge(ids[i-1], id))
		}
	}
}

func TestAddNodeRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	g := New()
	addNode(t, g, "a", RoleUser, "hi")

	err := g.AddNode(&Node{ID: "a", Role: RoleUser})
	assert.True(t, errors.Is(err, ErrDuplicateNode))

	err = g.AddNode(&Node{Role: RoleUser})
	assert.True(t, errors.Is(err, ErrInvalidNode))
}

func TestAddNodeCopiesInput(t *testing.T) {
	g := New()
	n := &Node{ID: "a", Role: RoleUser, Content: "original"}
	require.NoError(t, g.AddNode(n))

	n.Content = "mutated after insert"
	got, err := g.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestFirstEdgeBecomesChosenParent(t *testing.T) {
	g := New()
	addNode(t, g, "p1", RoleUser, "")
	addNode(t, g, "p2", RoleUser, "")
	addNode(t, g, "c", RoleAssistant, "")

	require.NoError(t, g.AddEdge("p1", "c"))
	require.NoError(t, g.AddEdge("p2", "c")) // structural only

	assert.Equal(t, "p1", g.ChosenParent("c"))
	assert.Len(t, g.Edges(), 2)
}

func TestAddEdgeUnknownEndpoints(t *testing.T) {
	g := New()
	addNode(t, g, "a", RoleUser, "")

	assert.True(t, errors.Is(g.AddEdge("a", "ghost"), ErrNodeNotFound))
	assert.True(t, errors.Is(g.AddEdge("ghost", "a"), ErrNodeNotFound))
}

func TestChosenParentCycleRejected(t *testing.T) {
	g := New()
	chain(t, g, "a", "b", "c")

	// c is an ancestor... making a a child of c through a chosen edge would
	// close a loop in the chosen-parent forest.
	err := g.AddEdge("c", "a")
	assert.True(t, errors.Is(err, ErrCycle))

	// As a structural (non-chosen) edge it is fine: b already has a chosen
	// parent, so this extra edge does not touch the forest.
	require.NoError(t, g.AddEdge("c", "b"))
	assert.Equal(t, "a", g.ChosenParent("b"))
}

func TestPathFollowsChosenParents(t *testing.T) {
	g := New()
	chain(t, g, "root", "mid", "leaf")
	// A structural edge from elsewhere must not disturb the path.
	addNode(t, g, "other", RoleUser, "")
	require.NoError(t, g.AddEdge("other", "leaf"))

	path, err := g.Path("leaf")
	require.NoError(t, err)
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"root", "mid", "leaf"}, ids)

	_, err = g.Path("ghost")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestAncestors(t *testing.T) {
	g := New()
	chain(t, g, "a", "b", "c")

	assert.Equal(t, []string{"b", "a"}, g.Ancestors("c"))
	assert.Empty(t, g.Ancestors("a"))
}

func TestOnSameLineage(t *testing.T) {
	g := New()
	chain(t, g, "a", "b", "c")
	// Sibling branch under a.
	addNode(t, g, "d", RoleAssistant, "")
	require.NoError(t, g.AddEdge("a", "d"))

	assert.True(t, g.OnSameLineage("a", "c"))
	assert.True(t, g.OnSameLineage("c", "a"))
	assert.True(t, g.OnSameLineage("b", "b"))
	assert.False(t, g.OnSameLineage("c", "d")) // siblings share an ancestor but no path
}

func TestAppendContentOrdering(t *testing.T) {
	g := New()
	addNode(t, g, "n", RoleAssistant, "")

	require.NoError(t, g.AppendContent("n", "one "))
	require.NoError(t, g.AppendContent("n", "two "))
	require.NoError(t, g.AppendContent("n", "three"))

	got, err := g.Get("n")
	require.NoError(t, err)
	assert.Equal(t, "one two three", got.Content)

	assert.True(t, errors.Is(g.AppendContent("ghost", "x"), ErrNodeNotFound))
}

func TestStreamingAndMetaFlags(t *testing.T) {
	g := New()
	addNode(t, g, "n", RoleAssistant, "")

	g.SetStreaming("n", true)
	g.SetMeta("n", "claude", "opus")
	got, _ := g.Get("n")
	assert.True(t, got.Streaming)
	assert.Equal(t, "claude", got.Provider)
	assert.Equal(t, "opus", got.Model)

	g.SetStreaming("n", false)
	got, _ = g.Get("n")
	assert.False(t, got.Streaming)
}
