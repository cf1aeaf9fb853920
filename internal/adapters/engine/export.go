package engine

import (
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// NodeExport is a consistent view of one node taken for persistence.
type NodeExport struct {
	ID      domain.NodeID
	Name    string
	Factory string
	UIInfo  *domain.UIInfo
	State   domain.NodeState
	Model   ports.NodeModel
	// Outputs is only set for EXECUTED nodes.
	Outputs  []domain.PortObject
	Workflow *WorkflowExport
}

type WorkflowExport struct {
	ID          domain.NodeID
	Name        string
	InPorts     []domain.WorkflowPortTemplate
	OutPorts    []domain.WorkflowPortTemplate
	UIInfo      *domain.UIInfo
	Nodes       []NodeExport
	Connections []domain.Connection
}

// Export captures nodes and connections, including nested workflows, under
// the mutation lock.
func (m *WorkflowManager) Export() *WorkflowExport {
	m.lock()
	defer m.unlock()

	export := &WorkflowExport{
		ID:          m.id,
		Name:        m.name,
		InPorts:     append([]domain.WorkflowPortTemplate(nil), m.inPorts...),
		OutPorts:    append([]domain.WorkflowPortTemplate(nil), m.outPorts...),
		UIInfo:      m.uiInfo.Clone(),
		Connections: m.connectionsLocked(),
	}

	for _, id := range m.NodeIDs() {
		c, ok := m.lookup(id)
		if !ok {
			continue
		}
		status := c.Status()
		node := NodeExport{
			ID:      id,
			Name:    status.Name,
			Factory: status.Factory,
			UIInfo:  c.UIInfo(),
			State:   status.State,
			Model:   c.model,
		}
		if status.State == domain.StateExecuted {
			node.Outputs = make([]domain.PortObject, len(c.outPorts))
			for i := range c.outPorts {
				node.Outputs[i] = c.PortObject(i)
			}
		}
		if c.sub != nil {
			node.Model = nil
			node.Workflow = c.sub.Export()
		}
		export.Nodes = append(export.Nodes, node)
	}
	return export
}
