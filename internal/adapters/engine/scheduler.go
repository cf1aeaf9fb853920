package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/eleven-am/loom/internal/domain"
)

type nodeResult struct {
	id         domain.NodeID
	generation uint64
	started    bool
	outputs    []domain.PortObject
	err        error
	duration   time.Duration
}

// ExecuteAll executes every node of the workflow.
func (m *WorkflowManager) ExecuteAll(ctx context.Context) error {
	return m.Execute(ctx)
}

// Execute runs the given nodes, or all nodes, together with every upstream
// node that has not EXECUTED yet. Nodes run as soon as all of their inputs
// are available, at most WorkerCount at a time. The first failure in
// dependency order is returned.
func (m *WorkflowManager) Execute(ctx context.Context, ids ...domain.NodeID) error {
	const op = "execute"
	if err := ctx.Err(); err != nil {
		return domain.NewCancelledError(op, "request cancelled", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.lock()
	if m.closed {
		m.unlock()
		return closedError(op)
	}
	targets, err := m.prepareExecutionLocked(op, ids)
	if err != nil {
		m.unlock()
		return err
	}
	runID := m.nextRun
	m.nextRun++
	m.runs[runID] = cancel
	m.unlock()

	defer func() {
		m.lock()
		delete(m.runs, runID)
		m.unlock()
	}()

	if len(targets) == 0 {
		return nil
	}
	m.logger.Debug("execution started", "nodes", len(targets))
	return m.run(runCtx, op, targets)
}

// prepareExecutionLocked resolves the closure of nodes to run in dependency
// order and configures the ones that are not configured yet.
func (m *WorkflowManager) prepareExecutionLocked(op string, ids []domain.NodeID) ([]domain.NodeID, error) {
	requested, err := m.resolveLocked(op, ids)
	if err != nil {
		return nil, err
	}

	closure := make(map[domain.NodeID]bool)
	for _, id := range requested {
		closure[id] = true
		for _, a := range m.dag.Ancestors(id) {
			closure[a] = true
		}
	}

	var pending []domain.NodeID
	for id := range closure {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		switch state := c.State(); state {
		case domain.StateExecuted:
		case domain.StateQueued, domain.StateExecuting:
			return nil, domain.NewInvalidStateError(op, "node is already "+state.String()).WithNode(id)
		default:
			pending = append(pending, id)
		}
	}

	order := m.dag.TopologicalOrder(pending...)
	if len(pending) == 0 {
		order = nil
	}
	var unconfigured []domain.NodeID
	for _, id := range order {
		if c, _ := m.lookup(id); c.State() != domain.StateConfigured {
			unconfigured = append(unconfigured, id)
		}
	}
	m.configureNodesLocked(unconfigured)
	return order, nil
}

func (m *WorkflowManager) run(ctx context.Context, op string, targets []domain.NodeID) error {
	sem := semaphore.NewWeighted(int64(m.config.WorkerCount))
	results := make(chan nodeResult, len(targets))
	claimed := make(map[domain.NodeID]bool, len(targets))
	failures := make(map[domain.NodeID]error)
	var g errgroup.Group

	inFlight := 0
	for {
		m.lock()
		ready := m.claimReadyLocked(targets, claimed)
		m.unlock()

		for _, id := range ready {
			inFlight++
			g.Go(func() error {
				results <- m.runNode(ctx, sem, id)
				return nil
			})
		}
		if inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			m.abort(targets, claimed)
			return domain.NewCancelledError(op, "execution cancelled", ctx.Err())
		case res := <-results:
			inFlight--
			if ctx.Err() != nil {
				m.abort(targets, claimed)
				return domain.NewCancelledError(op, "execution cancelled", ctx.Err())
			}
			if err := m.complete(res); err != nil {
				failures[res.id] = err
			}
		}
	}
	_ = g.Wait()

	return m.outcome(op, targets, claimed, failures)
}

// claimReadyLocked queues every target whose inputs are all available. A
// node is claimed at most once per run.
func (m *WorkflowManager) claimReadyLocked(targets []domain.NodeID, claimed map[domain.NodeID]bool) []domain.NodeID {
	var ready []domain.NodeID
	for _, id := range targets {
		if claimed[id] {
			continue
		}
		c, ok := m.lookup(id)
		if !ok {
			claimed[id] = true
			continue
		}
		if c.State() != domain.StateConfigured || !m.inputsReadyLocked(c) {
			continue
		}
		before := c.State()
		if err := c.queue(); err != nil {
			m.logger.Warn("failed to queue node", "node_id", id, "error", err)
			continue
		}
		m.track(c, before)
		claimed[id] = true
		ready = append(ready, id)
	}
	return ready
}

func (m *WorkflowManager) inputsReadyLocked(c *NodeContainer) bool {
	for i, port := range c.inPorts {
		conn, ok := m.connections[domain.ConnectionID{Dest: c.id, DestPort: i}]
		if !ok {
			if !port.portType.Optional {
				return false
			}
			continue
		}
		if conn.Source() == m.id {
			if m.boundaryInObjects[conn.SourcePort()] == nil && !port.portType.Optional {
				return false
			}
			continue
		}
		src, ok := m.lookup(conn.Source())
		if !ok || src.State() != domain.StateExecuted {
			return false
		}
	}
	return true
}

func (m *WorkflowManager) runNode(ctx context.Context, sem *semaphore.Weighted, id domain.NodeID) nodeResult {
	res := nodeResult{id: id}
	if err := sem.Acquire(ctx, 1); err != nil {
		res.err = err
		return res
	}
	defer sem.Release(1)

	m.lock()
	c, ok := m.lookup(id)
	if !ok {
		m.unlock()
		res.err = domain.NewNotFoundError("execute", "node was removed").WithNode(id)
		return res
	}
	before := c.State()
	inputs := m.inputObjectsLocked(c)
	generation, err := c.beginExecution(inputs)
	m.track(c, before)
	m.unlock()
	if err != nil {
		res.err = err
		return res
	}
	res.started = true
	res.generation = generation

	nodeCtx := ctx
	if m.config.NodeExecutionTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, m.config.NodeExecutionTimeout)
		defer cancel()
	}

	start := time.Now()
	res.outputs, res.err = c.execute(nodeCtx, inputs)
	res.duration = time.Since(start)
	return res
}

// complete applies the result of one node. Results of a generation that was
// reset in the meantime are discarded.
func (m *WorkflowManager) complete(res nodeResult) error {
	m.lock()
	defer m.unlock()

	c, ok := m.lookup(res.id)
	if !ok {
		return nil
	}

	before := c.State()
	if !res.started {
		c.dequeue()
		m.track(c, before)
		return res.err
	}

	applied, err := c.finishExecution(res.generation, res.outputs, res.err)
	if !applied {
		m.metrics.recordDiscarded()
		m.logger.Debug("discarded stale execution result", "node_id", res.id, "generation", res.generation)
		return nil
	}
	m.metrics.recordExecution(c.factory, res.duration, err)
	m.track(c, before)

	if err != nil {
		m.logger.Warn("node execution failed", "node_id", res.id, "duration", res.duration, "error", err)
		return err
	}
	m.logger.Debug("node executed", "node_id", res.id, "duration", res.duration)
	m.configureNodesLocked(m.dag.Children(res.id))
	return nil
}

// abort returns claimed nodes that have not finished to a configured state.
// Their eventual results no longer match and are dropped.
func (m *WorkflowManager) abort(targets []domain.NodeID, claimed map[domain.NodeID]bool) {
	m.lock()
	defer m.unlock()

	var aborted []domain.NodeID
	for _, id := range targets {
		if !claimed[id] {
			continue
		}
		c, ok := m.lookup(id)
		if !ok || !(c.State() == domain.StateQueued || c.State() == domain.StateExecuting) {
			continue
		}
		before := c.State()
		c.reset()
		m.track(c, before)
		aborted = append(aborted, id)
	}
	m.configureNodesLocked(aborted)
	m.logger.Info("execution cancelled", "aborted_nodes", len(aborted))
}

func (m *WorkflowManager) outcome(op string, targets []domain.NodeID, claimed map[domain.NodeID]bool, failures map[domain.NodeID]error) error {
	for _, id := range targets {
		if err, ok := failures[id]; ok {
			if len(failures) > 1 {
				m.logger.Warn("execution finished with failures", "failed_nodes", len(failures), "first", id)
			}
			return err
		}
	}

	m.lock()
	defer m.unlock()
	for _, id := range targets {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		status := c.Status()
		switch status.State {
		case domain.StateExecuted:
		case domain.StateIdle, domain.StateConfigureFailed:
			if claimed[id] {
				return domain.NewCancelledError(op, "node was reset while executing", nil).WithNode(id)
			}
			return domain.NewConfigurationError(op, "node is not configured", errors.New(status.Message)).WithNode(id)
		case domain.StateConfigured:
			if claimed[id] {
				return domain.NewCancelledError(op, "node was reset while executing", nil).WithNode(id)
			}
			return domain.NewExecutionError(op, "node inputs are not available", nil).WithNode(id)
		default:
			return domain.NewExecutionError(op, fmt.Sprintf("node could not run, state %s", status.State), nil).WithNode(id)
		}
	}
	return nil
}
