package engine

import (
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
)

// setBoundary fixes the boundary ports of a freshly built workflow.
func (m *WorkflowManager) setBoundary(in, out []domain.WorkflowPortTemplate) {
	m.inPorts = reindex(in)
	m.outPorts = reindex(out)
	m.boundaryInSpecs = make([]domain.PortObjectSpec, len(in))
	m.boundaryInObjects = make([]domain.PortObject, len(in))
}

func reindex(templates []domain.WorkflowPortTemplate) []domain.WorkflowPortTemplate {
	out := make([]domain.WorkflowPortTemplate, len(templates))
	for i, t := range templates {
		t.Index = i
		out[i] = t
	}
	return out
}

func (m *WorkflowManager) InPorts() []domain.WorkflowPortTemplate {
	m.lock()
	defer m.unlock()
	return append([]domain.WorkflowPortTemplate(nil), m.inPorts...)
}

func (m *WorkflowManager) OutPorts() []domain.WorkflowPortTemplate {
	m.lock()
	defer m.unlock()
	return append([]domain.WorkflowPortTemplate(nil), m.outPorts...)
}

// AddInPort appends a boundary input port. The ports of a sub-workflow are
// fixed by its container and cannot be extended.
func (m *WorkflowManager) AddInPort(portType domain.PortType, name string) (int, error) {
	m.lock()
	defer m.unlock()

	if m.parent != nil {
		return 0, domain.NewInvalidStateError("add_in_port", "sub-workflow ports are fixed by their container")
	}
	index := len(m.inPorts)
	m.inPorts = append(m.inPorts, domain.WorkflowPortTemplate{Index: index, Type: portType, Name: name})
	m.boundaryInSpecs = append(m.boundaryInSpecs, nil)
	m.boundaryInObjects = append(m.boundaryInObjects, nil)
	m.emit(domain.WorkflowEvent{Type: domain.EventPortsChanged, NodeID: m.id, Message: fmt.Sprintf("input port %d added", index)})
	return index, nil
}

func (m *WorkflowManager) AddOutPort(portType domain.PortType, name string) (int, error) {
	m.lock()
	defer m.unlock()

	if m.parent != nil {
		return 0, domain.NewInvalidStateError("add_out_port", "sub-workflow ports are fixed by their container")
	}
	index := len(m.outPorts)
	m.outPorts = append(m.outPorts, domain.WorkflowPortTemplate{Index: index, Type: portType, Name: name})
	m.emit(domain.WorkflowEvent{Type: domain.EventPortsChanged, NodeID: m.id, Message: fmt.Sprintf("output port %d added", index)})
	return index, nil
}

// SetBoundaryInputSpecs replaces the specs arriving at the input ports and
// reconfigures their consumers.
func (m *WorkflowManager) SetBoundaryInputSpecs(specs []domain.PortObjectSpec) error {
	const op = "set_boundary_specs"
	m.lock()
	defer m.unlockForParent()

	if len(specs) != len(m.inPorts) {
		return domain.NewStructuralError(op, fmt.Sprintf("%d specs for %d input ports", len(specs), len(m.inPorts)), nil)
	}
	for i := range specs {
		m.boundaryInSpecs[i] = specs[i]
		m.boundaryInObjects[i] = nil
	}
	m.resetLocked(m.boundaryConsumersLocked(-1))
	return nil
}

// SetBoundaryInputs supplies the objects arriving at the input ports.
// Specs follow the objects.
func (m *WorkflowManager) SetBoundaryInputs(objects []domain.PortObject) error {
	const op = "set_boundary_inputs"
	m.lock()
	defer m.unlockForParent()

	if len(objects) != len(m.inPorts) {
		return domain.NewStructuralError(op, fmt.Sprintf("%d objects for %d input ports", len(objects), len(m.inPorts)), nil)
	}
	for i, obj := range objects {
		m.setBoundaryInputLocked(i, obj)
	}
	m.resetLocked(m.boundaryConsumersLocked(-1))
	return nil
}

// SetBoundaryInput supplies the object of one input port.
func (m *WorkflowManager) SetBoundaryInput(port int, obj domain.PortObject) error {
	const op = "set_boundary_input"
	m.lock()
	defer m.unlockForParent()

	if port < 0 || port >= len(m.inPorts) {
		return domain.NewStructuralError(op, fmt.Sprintf("workflow has no input port %d", port), nil)
	}
	if obj != nil && !m.inPorts[port].Type.Accepts(obj.PortType()) {
		return domain.NewStructuralError(op, fmt.Sprintf("input port %d cannot accept %s", port, obj.PortType()), nil)
	}
	m.setBoundaryInputLocked(port, obj)
	m.resetLocked(m.boundaryConsumersLocked(port))
	return nil
}

func (m *WorkflowManager) setBoundaryInputLocked(port int, obj domain.PortObject) {
	m.boundaryInObjects[port] = obj
	if obj == nil {
		m.boundaryInSpecs[port] = nil
		return
	}
	if spec := obj.Spec(); spec != nil {
		m.boundaryInSpecs[port] = spec
	}
}

// boundaryConsumersLocked lists the nodes fed by input port, or by any input
// port when port is negative.
func (m *WorkflowManager) boundaryConsumersLocked(port int) []domain.NodeID {
	var ids []domain.NodeID
	for _, conn := range m.connections {
		if conn.Source() != m.id || conn.Dest() == m.id {
			continue
		}
		if port >= 0 && conn.SourcePort() != port {
			continue
		}
		ids = append(ids, conn.Dest())
	}
	domain.SortNodeIDs(ids)
	return ids
}

func (m *WorkflowManager) BoundaryOutputSpecs() []domain.PortObjectSpec {
	m.lock()
	defer m.unlock()
	specs := make([]domain.PortObjectSpec, len(m.outPorts))
	for i := range m.outPorts {
		specs[i] = m.boundaryOutputSpecLocked(i)
	}
	return specs
}

func (m *WorkflowManager) BoundaryOutputSpec(port int) domain.PortObjectSpec {
	m.lock()
	defer m.unlock()
	return m.boundaryOutputSpecLocked(port)
}

func (m *WorkflowManager) boundaryOutputSpecLocked(port int) domain.PortObjectSpec {
	conn, ok := m.connections[domain.ConnectionID{Dest: m.id, DestPort: port}]
	if !ok {
		return nil
	}
	if conn.Source() == m.id {
		return m.boundaryInSpecs[conn.SourcePort()]
	}
	src, ok := m.lookup(conn.Source())
	if !ok {
		return nil
	}
	return src.PortObjectSpec(conn.SourcePort())
}

func (m *WorkflowManager) BoundaryOutputs() []domain.PortObject {
	m.lock()
	defer m.unlock()
	objects := make([]domain.PortObject, len(m.outPorts))
	for i := range m.outPorts {
		objects[i] = m.boundaryOutputLocked(i)
	}
	return objects
}

// BoundaryOutput returns the object leaving the given output port. It is
// nil until the connected source has EXECUTED.
func (m *WorkflowManager) BoundaryOutput(port int) domain.PortObject {
	m.lock()
	defer m.unlock()
	return m.boundaryOutputLocked(port)
}

func (m *WorkflowManager) boundaryOutputLocked(port int) domain.PortObject {
	conn, ok := m.connections[domain.ConnectionID{Dest: m.id, DestPort: port}]
	if !ok {
		return nil
	}
	if conn.Source() == m.id {
		return m.boundaryInObjects[conn.SourcePort()]
	}
	src, ok := m.lookup(conn.Source())
	if !ok {
		return nil
	}
	return src.PortObject(conn.SourcePort())
}
