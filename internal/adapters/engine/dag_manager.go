package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/heimdalr/dag"

	"github.com/eleven-am/loom/internal/domain"
)

// DAGManager tracks the node-to-node dependency graph of one workflow using
// the heimdalr/dag library. Several connections between the same pair of
// nodes share a single edge, so edge multiplicity is counted here.
// Boundary connections never enter the graph. Callers serialize access.
type DAGManager struct {
	graph  *dag.DAG
	edges  map[[2]domain.NodeID]int
	logger *slog.Logger
}

func NewDAGManager(logger *slog.Logger) *DAGManager {
	return &DAGManager{
		graph:  dag.NewDAG(),
		edges:  make(map[[2]domain.NodeID]int),
		logger: logger.With("component", "dag-manager"),
	}
}

func (dm *DAGManager) AddNode(id domain.NodeID) error {
	if err := dm.graph.AddVertexByID(string(id), id); err != nil {
		return fmt.Errorf("failed to add vertex %s: %w", id, err)
	}
	return nil
}

func (dm *DAGManager) RemoveNode(id domain.NodeID) error {
	for key := range dm.edges {
		if key[0] == id || key[1] == id {
			delete(dm.edges, key)
		}
	}
	if err := dm.graph.DeleteVertex(string(id)); err != nil {
		return fmt.Errorf("failed to remove vertex %s: %w", id, err)
	}
	return nil
}

// CheckEdge reports, without mutating anything, whether from -> to could be
// added without closing a cycle.
func (dm *DAGManager) CheckEdge(from, to domain.NodeID) error {
	if from == to {
		return fmt.Errorf("edge from %s to itself would create cycle", from)
	}
	if dm.edges[[2]domain.NodeID{from, to}] > 0 {
		return nil
	}
	descendants, err := dm.graph.GetDescendants(string(to))
	if err != nil {
		return fmt.Errorf("failed to inspect descendants of %s: %w", to, err)
	}
	if _, ok := descendants[string(from)]; ok {
		return fmt.Errorf("edge from %s to %s would create cycle", from, to)
	}
	return nil
}

func (dm *DAGManager) AddEdge(from, to domain.NodeID) error {
	key := [2]domain.NodeID{from, to}
	if dm.edges[key] > 0 {
		dm.edges[key]++
		return nil
	}

	if err := dm.graph.AddEdge(string(from), string(to)); err != nil {
		var loopErr dag.EdgeLoopError
		if errors.As(err, &loopErr) {
			dm.logger.Debug("edge would create cycle in DAG", "from", from, "to", to)
			return fmt.Errorf("edge from %s to %s would create cycle", from, to)
		}
		return fmt.Errorf("failed to add edge from %s to %s: %w", from, to, err)
	}
	dm.edges[key] = 1
	return nil
}

func (dm *DAGManager) RemoveEdge(from, to domain.NodeID) error {
	key := [2]domain.NodeID{from, to}
	switch count := dm.edges[key]; {
	case count == 0:
		return nil
	case count > 1:
		dm.edges[key] = count - 1
		return nil
	}
	delete(dm.edges, key)
	if err := dm.graph.DeleteEdge(string(from), string(to)); err != nil {
		return fmt.Errorf("failed to remove edge from %s to %s: %w", from, to, err)
	}
	return nil
}

func (dm *DAGManager) Parents(id domain.NodeID) []domain.NodeID {
	parents, err := dm.graph.GetParents(string(id))
	if err != nil {
		return nil
	}
	return sortedIDs(parents)
}

func (dm *DAGManager) Children(id domain.NodeID) []domain.NodeID {
	children, err := dm.graph.GetChildren(string(id))
	if err != nil {
		return nil
	}
	return sortedIDs(children)
}

func (dm *DAGManager) Descendants(id domain.NodeID) []domain.NodeID {
	descendants, err := dm.graph.GetDescendants(string(id))
	if err != nil {
		return nil
	}
	return sortedIDs(descendants)
}

func (dm *DAGManager) Ancestors(id domain.NodeID) []domain.NodeID {
	ancestors, err := dm.graph.GetAncestors(string(id))
	if err != nil {
		return nil
	}
	return sortedIDs(ancestors)
}

// TopologicalOrder returns the given nodes, or all nodes when none are
// given, ordered so that every node follows all of its upstream nodes.
// Ties are broken by id so the order is deterministic.
func (dm *DAGManager) TopologicalOrder(subset ...domain.NodeID) []domain.NodeID {
	var ids []domain.NodeID
	if len(subset) == 0 {
		ids = sortedIDs(dm.graph.GetVertices())
	} else {
		ids = append(ids, subset...)
		domain.SortNodeIDs(ids)
	}

	include := make(map[domain.NodeID]bool, len(ids))
	for _, id := range ids {
		include[id] = true
	}

	inDegree := make(map[domain.NodeID]int, len(ids))
	for _, id := range ids {
		for _, parent := range dm.Parents(id) {
			if include[parent] {
				inDegree[id]++
			}
		}
	}

	var queue []domain.NodeID
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]domain.NodeID, 0, len(ids))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		var released []domain.NodeID
		for _, child := range dm.Children(current) {
			if !include[child] {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				released = append(released, child)
			}
		}
		queue = append(queue, released...)
		domain.SortNodeIDs(queue)
	}
	return order
}

func (dm *DAGManager) Size() int {
	return dm.graph.GetOrder()
}

func sortedIDs(set map[string]interface{}) []domain.NodeID {
	ids := make([]domain.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, domain.NodeID(id))
	}
	domain.SortNodeIDs(ids)
	return ids
}
