package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
)

// WorkflowOps is the synchronous form of the workflow command surface.
type WorkflowOps interface {
	RemoveNodesAndConnections(ctx context.Context, nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) error
	AddConnection(ctx context.Context, source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) (domain.Connection, error)
	RemoveConnection(ctx context.Context, id domain.ConnectionID) error
	Configure(ctx context.Context, ids ...domain.NodeID) error
	Reset(ctx context.Context, ids ...domain.NodeID) error
	Execute(ctx context.Context, ids ...domain.NodeID) error
	NodeStatus(ctx context.Context, id domain.NodeID) (domain.NodeStatus, error)
}

// AsyncWorkflowOps is the deferred form of the same commands. Every call
// returns immediately; the operation keeps running when its waiter gives up.
type AsyncWorkflowOps interface {
	RemoveNodesAndConnectionsAsync(nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) *future.Future[struct{}]
	AddConnectionAsync(source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) *future.Future[domain.Connection]
	RemoveConnectionAsync(id domain.ConnectionID) *future.Future[struct{}]
	ConfigureAsync(ids ...domain.NodeID) *future.Future[struct{}]
	ResetAsync(ids ...domain.NodeID) *future.Future[struct{}]
	ExecuteAsync(ids ...domain.NodeID) *future.Future[struct{}]
	NodeStatusAsync(id domain.NodeID) *future.Future[domain.NodeStatus]
}

// WorkflowListener receives workflow events after the mutation that caused
// them has completed.
type WorkflowListener interface {
	OnWorkflowEvent(event domain.WorkflowEvent)
}

type WorkflowListenerFunc func(event domain.WorkflowEvent)

func (f WorkflowListenerFunc) OnWorkflowEvent(event domain.WorkflowEvent) { f(event) }
