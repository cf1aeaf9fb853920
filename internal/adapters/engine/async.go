package engine

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
	"github.com/eleven-am/loom/internal/ports"
)

var (
	_ ports.WorkflowOps      = (*WorkflowManager)(nil)
	_ ports.AsyncWorkflowOps = (*AsyncManager)(nil)
)

// AsyncManager exposes a WorkflowManager through deferred results. Every
// call starts immediately in its own goroutine and keeps running when the
// caller stops waiting; Close cancels whatever is still in flight.
type AsyncManager struct {
	manager *WorkflowManager
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewAsyncManager(manager *WorkflowManager) *AsyncManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncManager{manager: manager, ctx: ctx, cancel: cancel}
}

func (a *AsyncManager) Manager() *WorkflowManager { return a.manager }

func (a *AsyncManager) Close() {
	a.cancel()
}

func void(fn func() error) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

func (a *AsyncManager) RemoveNodesAndConnectionsAsync(nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) *future.Future[struct{}] {
	return void(func() error {
		return a.manager.RemoveNodesAndConnections(a.ctx, nodeIDs, connectionIDs)
	})
}

func (a *AsyncManager) AddConnectionAsync(source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) *future.Future[domain.Connection] {
	return future.Go(func() (domain.Connection, error) {
		return a.manager.AddConnection(a.ctx, source, sourcePort, dest, destPort)
	})
}

func (a *AsyncManager) RemoveConnectionAsync(id domain.ConnectionID) *future.Future[struct{}] {
	return void(func() error {
		return a.manager.RemoveConnection(a.ctx, id)
	})
}

func (a *AsyncManager) ConfigureAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return void(func() error {
		return a.manager.Configure(a.ctx, ids...)
	})
}

func (a *AsyncManager) ResetAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return void(func() error {
		return a.manager.Reset(a.ctx, ids...)
	})
}

func (a *AsyncManager) ExecuteAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return void(func() error {
		return a.manager.Execute(a.ctx, ids...)
	})
}

func (a *AsyncManager) NodeStatusAsync(id domain.NodeID) *future.Future[domain.NodeStatus] {
	return future.Go(func() (domain.NodeStatus, error) {
		return a.manager.NodeStatus(a.ctx, id)
	})
}
