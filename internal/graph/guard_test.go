package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardBlocksDescendantWhileStreaming(t *testing.T) {
	g := New()
	chain(t, g, "A", "B", "C")
	guard := NewLineageGuard(g)

	require.NoError(t, guard.StartGeneration("B"))

	assert.True(t, guard.IsBlocked("C"))
	assert.True(t, guard.IsBlocked("A"))
	assert.True(t, guard.IsBlocked("B"))

	err := guard.StartGeneration("C")
	require.Error(t, err)
	assert.True(t, IsBlocked(err))
	var ce *ConcurrencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "C", ce.NodeID)
	assert.Equal(t, "B", ce.Blocking)

	// Terminal stop releases the whole chain.
	guard.EndGeneration("B")
	assert.False(t, guard.IsBlocked("C"))
	require.NoError(t, guard.StartGeneration("C"))
}

func TestGuardIndependentRootsRunInParallel(t *testing.T) {
	g := New()
	chain(t, g, "D")
	chain(t, g, "E")
	guard := NewLineageGuard(g)

	require.NoError(t, guard.StartGeneration("D"))
	require.NoError(t, guard.StartGeneration("E"))
	assert.ElementsMatch(t, []string{"D", "E"}, guard.Active())
}

func TestGuardSiblingBranchesRunInParallel(t *testing.T) {
	g := New()
	chain(t, g, "root", "left")
	addNode(t, g, "right", RoleAssistant, "")
	require.NoError(t, g.AddEdge("root", "right"))
	guard := NewLineageGuard(g)

	require.NoError(t, guard.StartGeneration("left"))
	// Siblings share an ancestor but no ancestor/descendant path between
	// them; only the shared ancestor itself is locked.
	require.NoError(t, guard.StartGeneration("right"))
	assert.True(t, guard.IsBlocked("root"))
}

func TestGuardFailedStartMutatesNothing(t *testing.T) {
	g := New()
	chain(t, g, "A", "B")
	guard := NewLineageGuard(g)

	require.NoError(t, guard.StartGeneration("A"))
	require.Error(t, guard.StartGeneration("B"))
	assert.Equal(t, []string{"A"}, guard.Active())

	// The refused node was not claimed, so releasing it is a no-op and the
	// original claim stays.
	guard.EndGeneration("B")
	assert.True(t, guard.IsBlocked("B"))
}

func TestGuardEndGenerationIdempotent(t *testing.T) {
	g := New()
	chain(t, g, "A")
	guard := NewLineageGuard(g)

	require.NoError(t, guard.StartGeneration("A"))
	guard.EndGeneration("A")
	guard.EndGeneration("A")
	assert.Empty(t, guard.Active())
}

// Two racers on one lineage: exactly one StartGeneration may win.
func TestGuardCheckAndInsertIsAtomic(t *testing.T) {
	g := New()
	chain(t, g, "A", "B")
	guard := NewLineageGuard(g)

	const rounds = 200
	for i := 0; i < rounds; i++ {
		var wg sync.WaitGroup
		results := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); results[0] = guard.StartGeneration("A") }()
		go func() { defer wg.Done(); results[1] = guard.StartGeneration("B") }()
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			}
		}
		require.Equal(t, 1, wins, "round %d", i)

		guard.EndGeneration("A")
		guard.EndGeneration("B")
	}
}
