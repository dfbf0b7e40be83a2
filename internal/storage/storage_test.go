package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidchris/thoughttree/internal/graph"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testProject(t *testing.T, s *Store, id string) *Project {
	t.Helper()
	now := time.Now()
	p := &Project{ID: id, Name: "proj " + id, NotesDir: "/notes/" + id, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestProjectCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testProject(t, s, "p1")

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "proj p1", got.Name)
	assert.Equal(t, "/notes/p1", got.NotesDir)

	_, err = s.GetProject(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))

	testProject(t, s, "p2")
	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteProject(ctx, "p1"))
	assert.True(t, errors.Is(s.DeleteProject(ctx, "p1"), ErrNotFound))
}

func TestSaveLoadGraphRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testProject(t, s, "p1")

	g := graph.New()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, g.AddNode(&graph.Node{ID: "a", Role: graph.RoleUser, Content: "ask", Timestamp: now}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "b", Role: graph.RoleAssistant, Content: "answer", Timestamp: now, Provider: "claude", Model: "opus"}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "c", Role: graph.RoleUser, Content: "branch", Timestamp: now}))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	// Extra structural parent for c; must not become chosen after reload.
	require.NoError(t, g.AddEdge("b", "c"))

	require.NoError(t, s.SaveGraph(ctx, "p1", g))

	loaded, err := s.LoadGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	b, err := loaded.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "answer", b.Content)
	assert.Equal(t, "claude", b.Provider)
	assert.Equal(t, "opus", b.Model)

	assert.Equal(t, "a", loaded.ChosenParent("b"))
	assert.Equal(t, "a", loaded.ChosenParent("c"))
	assert.Len(t, loaded.Edges(), 3)
}

func TestSaveGraphReplacesPrevious(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testProject(t, s, "p1")

	g1 := graph.New()
	require.NoError(t, g1.AddNode(&graph.Node{ID: "old", Role: graph.RoleUser, Content: "old", Timestamp: time.Now()}))
	require.NoError(t, s.SaveGraph(ctx, "p1", g1))

	g2 := graph.New()
	require.NoError(t, g2.AddNode(&graph.Node{ID: "new", Role: graph.RoleUser, Content: "new", Timestamp: time.Now()}))
	require.NoError(t, s.SaveGraph(ctx, "p1", g2))

	loaded, err := s.LoadGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	_, err = loaded.Get("old")
	assert.Error(t, err)
}

func TestLoadGraphEmptyProject(t *testing.T) {
	s := testStore(t)
	testProject(t, s, "p1")

	g, err := s.LoadGraph(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestSessionRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testProject(t, s, "p1")

	require.NoError(t, s.RecordSession(ctx, &SessionRecord{
		ID: "s1", ProjectID: "p1", Provider: "claude", Workdir: "/notes/p1",
		RemoteID: "r1", CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, s.RecordSession(ctx, &SessionRecord{
		ID: "s2", ProjectID: "p1", Provider: "claude", Workdir: "/notes/p1",
		CreatedAt: time.Now(),
	}))

	recs, err := s.ListSessions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s2", recs[0].ID) // newest first
	assert.Equal(t, "r1", recs[1].RemoteID)
}
