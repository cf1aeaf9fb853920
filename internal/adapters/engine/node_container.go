package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// NodeContainer owns one node model, its ports and its execution state.
// Mutating methods are only called by the owning WorkflowManager while it
// holds its mutation lock; mu additionally guards reads by observers.
type NodeContainer struct {
	id      domain.NodeID
	name    string
	factory string
	model   ports.NodeModel
	sub     *WorkflowManager

	inPorts  []*InPort
	outPorts []*OutPort

	mu         sync.RWMutex
	state      domain.NodeState
	message    string
	generation uint64
	uiInfo     *domain.UIInfo
}

func newNodeContainer(id domain.NodeID, model ports.NodeModel, lookup containerLookup, inspectors ports.InspectorFactory) *NodeContainer {
	c := &NodeContainer{
		id:    id,
		model: model,
		state: domain.StateIdle,
	}

	for i, t := range model.InPortTypes() {
		c.inPorts = append(c.inPorts, &InPort{index: i, portType: t})
	}
	for i, t := range model.OutPortTypes() {
		c.outPorts = append(c.outPorts, &OutPort{
			index:    i,
			portType: t,
			owner:    id,
			lookup:   lookup,
			factory:  inspectors,
		})
	}
	return c
}

func (c *NodeContainer) ID() domain.NodeID { return c.id }
func (c *NodeContainer) Name() string      { return c.name }
func (c *NodeContainer) Factory() string   { return c.factory }

// Model exposes the node model for persistence and tests.
func (c *NodeContainer) Model() ports.NodeModel { return c.model }

// SubWorkflow returns the nested workflow of a sub-workflow container.
func (c *NodeContainer) SubWorkflow() (*WorkflowManager, bool) {
	return c.sub, c.sub != nil
}

func (c *NodeContainer) InPortCount() int  { return len(c.inPorts) }
func (c *NodeContainer) OutPortCount() int { return len(c.outPorts) }

func (c *NodeContainer) InPort(i int) (*InPort, bool) {
	if i < 0 || i >= len(c.inPorts) {
		return nil, false
	}
	return c.inPorts[i], true
}

func (c *NodeContainer) OutPort(i int) (*OutPort, bool) {
	if i < 0 || i >= len(c.outPorts) {
		return nil, false
	}
	return c.outPorts[i], true
}

func (c *NodeContainer) State() domain.NodeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *NodeContainer) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.message
}

func (c *NodeContainer) InProgress() bool {
	return c.State().InProgress()
}

func (c *NodeContainer) UIInfo() *domain.UIInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uiInfo.Clone()
}

func (c *NodeContainer) SetUIInfo(info *domain.UIInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uiInfo = info.Clone()
}

func (c *NodeContainer) PortObjectSpec(i int) domain.PortObjectSpec {
	port, ok := c.OutPort(i)
	if !ok {
		return nil
	}
	return port.PortObjectSpec()
}

func (c *NodeContainer) PortObject(i int) domain.PortObject {
	port, ok := c.OutPort(i)
	if !ok {
		return nil
	}
	return port.PortObject()
}

func (c *NodeContainer) Status() domain.NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.NodeStatus{
		ID:      c.id,
		Name:    c.name,
		Factory: c.factory,
		State:   c.state,
		Message: c.message,
	}
}

// transitionLocked moves to the given state if the transition table allows it.
func (c *NodeContainer) transitionLocked(op string, to domain.NodeState) error {
	if !domain.CanTransition(c.state, to) {
		return domain.NewInvalidStateError(op,
			fmt.Sprintf("cannot move from %s to %s", c.state, to)).WithNode(c.id)
	}
	c.state = to
	return nil
}

func (c *NodeContainer) clearOutputsLocked(clearSpecs bool) {
	for _, p := range c.outPorts {
		p.object = nil
		if clearSpecs {
			p.spec = nil
		}
	}
}

// configure recomputes output specs from the given input specs. A nil spec
// on a required port leaves the node IDLE without calling the model.
func (c *NodeContainer) configure(inSpecs []domain.PortObjectSpec) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if !state.Configurable() {
		return domain.NewInvalidStateError("configure", "node is "+state.String()).WithNode(c.id)
	}

	for i, port := range c.inPorts {
		if inSpecs[i] == nil && !port.portType.Optional {
			c.mu.Lock()
			c.clearOutputsLocked(true)
			c.state = domain.StateIdle
			c.message = fmt.Sprintf("input port %d has no spec", i)
			c.mu.Unlock()
			return nil
		}
	}

	outSpecs, err := c.model.Configure(inSpecs)
	if err == nil && len(outSpecs) != len(c.outPorts) {
		err = fmt.Errorf("model returned %d specs for %d output ports", len(outSpecs), len(c.outPorts))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.clearOutputsLocked(true)
		c.message = err.Error()
		_ = c.transitionLocked("configure", domain.StateConfigureFailed)
		return domain.NewConfigurationError("configure", "configuration failed", err).WithNode(c.id)
	}

	for i, p := range c.outPorts {
		p.spec = outSpecs[i]
		p.object = nil
	}
	c.message = ""
	return c.transitionLocked("configure", domain.StateConfigured)
}

func (c *NodeContainer) queue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked("queue", domain.StateQueued)
}

// dequeue returns a queued node to CONFIGURED without running it.
func (c *NodeContainer) dequeue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateQueued {
		c.state = domain.StateConfigured
	}
}

// beginExecution moves a queued node to EXECUTING and returns the
// generation its result must match to be accepted.
func (c *NodeContainer) beginExecution(inObjects []domain.PortObject) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.StateQueued {
		return 0, domain.NewInvalidStateError("execute", "node is "+c.state.String()+", not QUEUED").WithNode(c.id)
	}
	for i, port := range c.inPorts {
		if inObjects[i] == nil && !port.portType.Optional {
			return 0, domain.NewInvalidStateError("execute",
				fmt.Sprintf("input port %d has no object", i)).WithNode(c.id)
		}
	}
	if err := c.transitionLocked("execute", domain.StateExecuting); err != nil {
		return 0, err
	}
	return c.generation, nil
}

// finishExecution applies a model result. It reports false when the result
// belongs to an older generation and was dropped.
func (c *NodeContainer) finishExecution(generation uint64, outObjects []domain.PortObject, execErr error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || c.state != domain.StateExecuting {
		return false, nil
	}

	if execErr == nil && len(outObjects) != len(c.outPorts) {
		execErr = fmt.Errorf("model returned %d objects for %d output ports", len(outObjects), len(c.outPorts))
	}
	if execErr == nil {
		for i, obj := range outObjects {
			if obj == nil && !c.outPorts[i].portType.Optional {
				execErr = fmt.Errorf("model returned no object for output port %d", i)
				break
			}
		}
	}

	if execErr != nil {
		c.clearOutputsLocked(false)
		c.message = execErr.Error()
		_ = c.transitionLocked("execute", domain.StateFailed)
		return true, domain.NewExecutionError("execute", "execution failed", execErr).WithNode(c.id)
	}

	for i, p := range c.outPorts {
		p.object = outObjects[i]
		if obj := outObjects[i]; obj != nil {
			if spec := obj.Spec(); spec != nil {
				p.spec = spec
			}
		}
	}
	c.message = ""
	return true, c.transitionLocked("execute", domain.StateExecuted)
}

// restore marks the node EXECUTED with previously persisted outputs.
func (c *NodeContainer) restore(outObjects []domain.PortObject) error {
	if len(outObjects) != len(c.outPorts) {
		return domain.NewLoadError("restore",
			fmt.Sprintf("%d objects for %d output ports", len(outObjects), len(c.outPorts)), nil).WithNode(c.id)
	}
	if err := c.queue(); err != nil {
		return err
	}
	generation, err := c.beginExecution(make([]domain.PortObject, len(c.inPorts)))
	if err != nil {
		c.dequeue()
		return err
	}
	_, err = c.finishExecution(generation, outObjects, nil)
	return err
}

// reset clears every output, invalidates any running execution and moves
// the node to IDLE.
func (c *NodeContainer) reset() {
	c.resetState()
	if resettable, ok := c.model.(ports.ResettableModel); ok {
		resettable.Reset()
	}
}

// resetState is reset without resetting the model.
func (c *NodeContainer) resetState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.clearOutputsLocked(true)
	c.state = domain.StateIdle
	c.message = ""
}

// execute runs the model outside of any lock and recovers from panics.
func (c *NodeContainer) execute(ctx context.Context, inObjects []domain.PortObject) (outObjects []domain.PortObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()
	return c.model.Execute(ctx, inObjects)
}

func (c *NodeContainer) closeInspectors() {
	for _, p := range c.outPorts {
		_ = p.CloseInspector()
	}
}
