package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// containerLookup resolves a port's owner by id. Ports never hold their
// container directly; the workflow's container table stays authoritative.
type containerLookup func(id domain.NodeID) (*NodeContainer, bool)

type InPort struct {
	index    int
	portType domain.PortType
}

func (p *InPort) Index() int                { return p.index }
func (p *InPort) PortType() domain.PortType { return p.portType }

// OutPort carries the spec and, once executed, the object its container
// produced. spec and object are guarded by the owning container's lock.
type OutPort struct {
	index    int
	portType domain.PortType
	owner    domain.NodeID
	lookup   containerLookup

	spec   domain.PortObjectSpec
	object domain.PortObject

	inspectorMu sync.Mutex
	inspector   *Inspector
	factory     ports.InspectorFactory
}

func (p *OutPort) Owner() domain.NodeID      { return p.owner }
func (p *OutPort) Index() int                { return p.index }
func (p *OutPort) PortType() domain.PortType { return p.portType }

func (p *OutPort) PortObjectSpec() domain.PortObjectSpec {
	c, ok := p.lookup(p.owner)
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return p.spec
}

// PortObject returns the computed object only while the owner is EXECUTED.
func (p *OutPort) PortObject() domain.PortObject {
	c, ok := p.lookup(p.owner)
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != domain.StateExecuted {
		return nil
	}
	return p.object
}

func (p *OutPort) InProgress() bool {
	c, ok := p.lookup(p.owner)
	if !ok {
		return false
	}
	return c.InProgress()
}

// OpenInspector attaches the single inspector this port allows. Ports of a
// removed node cannot be inspected.
func (p *OutPort) OpenInspector(name string) (*Inspector, error) {
	if _, ok := p.lookup(p.owner); !ok {
		return nil, domain.NewInvalidStateError("open_inspector", "node was removed").WithNode(p.owner)
	}

	p.inspectorMu.Lock()
	defer p.inspectorMu.Unlock()

	if p.inspector != nil {
		return nil, domain.NewInvalidStateError("open_inspector",
			"port already has inspector "+p.inspector.Name()).WithNode(p.owner)
	}

	factory := p.factory
	if factory == nil {
		factory = snapshotInspectorFactory{}
	}
	view, err := factory.OpenView(name, p)
	if err != nil {
		return nil, domain.NewExecutionError("open_inspector", "failed to open inspector "+name, err).WithNode(p.owner)
	}

	p.inspector = &Inspector{id: uuid.NewString(), view: view, port: p}
	return p.inspector, nil
}

func (p *OutPort) Inspector() (*Inspector, bool) {
	p.inspectorMu.Lock()
	defer p.inspectorMu.Unlock()
	return p.inspector, p.inspector != nil
}

// CloseInspector releases the attached inspector, if any.
func (p *OutPort) CloseInspector() error {
	p.inspectorMu.Lock()
	inspector := p.inspector
	p.inspectorMu.Unlock()
	if inspector == nil {
		return nil
	}
	return inspector.Close()
}

func (p *OutPort) release(inspector *Inspector) {
	p.inspectorMu.Lock()
	defer p.inspectorMu.Unlock()
	if p.inspector == inspector {
		p.inspector = nil
	}
}
