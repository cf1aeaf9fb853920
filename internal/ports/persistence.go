package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// WorkflowPersistor exposes a parsed workflow record for loading.
type WorkflowPersistor interface {
	Version() string
	Name() string
	// NodeLoaderMap holds one independent loader per node suffix.
	NodeLoaderMap() map[int]NodeLoader
	ConnectionSet() []domain.ConnectionTemplate
	// CorrectDestinationPort is the only mutation a persisted connection allows.
	CorrectDestinationPort(key domain.TemplateKey, destPort int) error
	InPortTemplates() []domain.WorkflowPortTemplate
	OutPortTemplates() []domain.WorkflowPortTemplate
	UIInfo() *domain.UIInfo
	// IndexErrors holds entries that could not even be assigned to a loader.
	IndexErrors() *domain.LoadResult
}

type NodeLoader interface {
	Suffix() int
	Name() string
	Load(ctx context.Context) (*LoadedNode, error)
}

// LoadedNode is a node restored from a record, ready to be added to a
// workflow. Exactly one of Model and Workflow is set.
type LoadedNode struct {
	Suffix   int
	Name     string
	Factory  string
	UIInfo   *domain.UIInfo
	Model    NodeModel
	Workflow WorkflowPersistor
	Outputs  []domain.PortObject
	// OutputsErr is set when persisted outputs were unreadable; the node
	// then loads without them.
	OutputsErr error
}
