package bridge

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
	"github.com/eleven-am/loom/internal/ports"
)

// Operation is one logical workflow command in both of its forms.
type Operation[T any] struct {
	Name  string
	Sync  func(ctx context.Context, ops ports.WorkflowOps) (T, error)
	Async func(ops ports.AsyncWorkflowOps) *future.Future[T]
}

type Void = struct{}

func RemoveNodesAndConnections(nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) Operation[Void] {
	return Operation[Void]{
		Name: "remove_nodes_and_connections",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (Void, error) {
			return Void{}, ops.RemoveNodesAndConnections(ctx, nodeIDs, connectionIDs)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[Void] {
			return ops.RemoveNodesAndConnectionsAsync(nodeIDs, connectionIDs)
		},
	}
}

func AddConnection(source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) Operation[domain.Connection] {
	return Operation[domain.Connection]{
		Name: "add_connection",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (domain.Connection, error) {
			return ops.AddConnection(ctx, source, sourcePort, dest, destPort)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[domain.Connection] {
			return ops.AddConnectionAsync(source, sourcePort, dest, destPort)
		},
	}
}

func RemoveConnection(id domain.ConnectionID) Operation[Void] {
	return Operation[Void]{
		Name: "remove_connection",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (Void, error) {
			return Void{}, ops.RemoveConnection(ctx, id)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[Void] {
			return ops.RemoveConnectionAsync(id)
		},
	}
}

func Configure(ids ...domain.NodeID) Operation[Void] {
	return Operation[Void]{
		Name: "configure",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (Void, error) {
			return Void{}, ops.Configure(ctx, ids...)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[Void] {
			return ops.ConfigureAsync(ids...)
		},
	}
}

func Reset(ids ...domain.NodeID) Operation[Void] {
	return Operation[Void]{
		Name: "reset",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (Void, error) {
			return Void{}, ops.Reset(ctx, ids...)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[Void] {
			return ops.ResetAsync(ids...)
		},
	}
}

func Execute(ids ...domain.NodeID) Operation[Void] {
	return Operation[Void]{
		Name: "execute",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (Void, error) {
			return Void{}, ops.Execute(ctx, ids...)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[Void] {
			return ops.ExecuteAsync(ids...)
		},
	}
}

func NodeStatus(id domain.NodeID) Operation[domain.NodeStatus] {
	return Operation[domain.NodeStatus]{
		Name: "node_status",
		Sync: func(ctx context.Context, ops ports.WorkflowOps) (domain.NodeStatus, error) {
			return ops.NodeStatus(ctx, id)
		},
		Async: func(ops ports.AsyncWorkflowOps) *future.Future[domain.NodeStatus] {
			return ops.NodeStatusAsync(id)
		},
	}
}
