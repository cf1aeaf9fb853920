package engine

import (
	"context"
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
)

// SubWorkflowNode is the model of a container holding a nested workflow.
// Input specs and objects are handed to the nested boundary, outputs are
// read back from it.
type SubWorkflowNode struct {
	workflow *WorkflowManager
}

func (n *SubWorkflowNode) Workflow() *WorkflowManager { return n.workflow }

func (n *SubWorkflowNode) InPortTypes() []domain.PortType {
	return templateTypes(n.workflow.inPorts)
}

func (n *SubWorkflowNode) OutPortTypes() []domain.PortType {
	return templateTypes(n.workflow.outPorts)
}

func templateTypes(templates []domain.WorkflowPortTemplate) []domain.PortType {
	types := make([]domain.PortType, len(templates))
	for i, t := range templates {
		types[i] = t.Type
	}
	return types
}

func (n *SubWorkflowNode) Configure(inSpecs []domain.PortObjectSpec) ([]domain.PortObjectSpec, error) {
	if err := n.workflow.SetBoundaryInputSpecs(inSpecs); err != nil {
		return nil, err
	}
	specs := n.workflow.BoundaryOutputSpecs()
	for i, spec := range specs {
		if spec == nil && !n.workflow.outPorts[i].Type.Optional {
			return nil, fmt.Errorf("workflow output %d has no spec", i)
		}
	}
	return specs, nil
}

func (n *SubWorkflowNode) Execute(ctx context.Context, inObjects []domain.PortObject) ([]domain.PortObject, error) {
	if err := n.workflow.SetBoundaryInputs(inObjects); err != nil {
		return nil, err
	}
	if err := n.workflow.ExecuteAll(ctx); err != nil {
		return nil, err
	}
	outputs := n.workflow.BoundaryOutputs()
	for i, obj := range outputs {
		if obj == nil && !n.workflow.outPorts[i].Type.Optional {
			return nil, fmt.Errorf("workflow output %d was not produced", i)
		}
	}
	return outputs, nil
}

func (n *SubWorkflowNode) Reset() {
	n.workflow.resetAll()
}
