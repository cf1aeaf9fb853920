package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
)

func newTestDAG(t *testing.T, ids ...domain.NodeID) *DAGManager {
	t.Helper()
	dm := NewDAGManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, id := range ids {
		require.NoError(t, dm.AddNode(id))
	}
	return dm
}

func TestDAGManager_TopologicalOrder(t *testing.T) {
	dm := newTestDAG(t, "0:1", "0:2", "0:3", "0:10")
	require.NoError(t, dm.AddEdge("0:10", "0:2"))
	require.NoError(t, dm.AddEdge("0:2", "0:3"))
	require.NoError(t, dm.AddEdge("0:1", "0:3"))

	assert.Equal(t, []domain.NodeID{"0:1", "0:10", "0:2", "0:3"}, dm.TopologicalOrder())
	assert.Equal(t, []domain.NodeID{"0:2", "0:3"}, dm.TopologicalOrder("0:3", "0:2"))
	assert.ElementsMatch(t, []domain.NodeID{"0:10", "0:2", "0:1"}, dm.Ancestors("0:3"))
	assert.ElementsMatch(t, []domain.NodeID{"0:2", "0:3"}, dm.Descendants("0:10"))
}

func TestDAGManager_RejectsCycle(t *testing.T) {
	dm := newTestDAG(t, "0:1", "0:2", "0:3")
	require.NoError(t, dm.AddEdge("0:1", "0:2"))
	require.NoError(t, dm.AddEdge("0:2", "0:3"))

	assert.Error(t, dm.CheckEdge("0:3", "0:1"))
	assert.Error(t, dm.AddEdge("0:3", "0:1"))
	assert.Error(t, dm.AddEdge("0:2", "0:2"))
	assert.Empty(t, dm.Parents("0:1"))
}

func TestDAGManager_CountsParallelEdges(t *testing.T) {
	dm := newTestDAG(t, "0:1", "0:2")
	require.NoError(t, dm.AddEdge("0:1", "0:2"))
	require.NoError(t, dm.AddEdge("0:1", "0:2"))

	require.NoError(t, dm.RemoveEdge("0:1", "0:2"))
	assert.Equal(t, []domain.NodeID{"0:1"}, dm.Parents("0:2"))

	require.NoError(t, dm.RemoveEdge("0:1", "0:2"))
	assert.Empty(t, dm.Parents("0:2"))
}

func TestDAGManager_RemoveNodeDropsEdges(t *testing.T) {
	dm := newTestDAG(t, "0:1", "0:2", "0:3")
	require.NoError(t, dm.AddEdge("0:1", "0:2"))
	require.NoError(t, dm.AddEdge("0:2", "0:3"))

	require.NoError(t, dm.RemoveNode("0:2"))
	assert.Equal(t, 2, dm.Size())
	assert.Empty(t, dm.Children("0:1"))
	require.NoError(t, dm.AddEdge("0:3", "0:1"), "no path remains once the middle node is gone")
}
