package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
	json "github.com/eleven-am/loom/internal/xjson"
)

// NodeModel is the pluggable computation held by a node container. The
// number of ports is read once when the container is built.
type NodeModel interface {
	InPortTypes() []domain.PortType
	OutPortTypes() []domain.PortType
	Configure(inSpecs []domain.PortObjectSpec) ([]domain.PortObjectSpec, error)
	Execute(ctx context.Context, inObjects []domain.PortObject) ([]domain.PortObject, error)
}

// SettingsModel is implemented by models whose settings are persisted.
type SettingsModel interface {
	Settings() (json.RawMessage, error)
	LoadSettings(settings json.RawMessage) error
}

// ResettableModel is implemented by models holding state between executions.
type ResettableModel interface {
	Reset()
}

type NodeFactory interface {
	Name() string
	Create() NodeModel
}

type NodeFactoryFunc struct {
	FactoryName string
	New         func() NodeModel
}

func (f NodeFactoryFunc) Name() string      { return f.FactoryName }
func (f NodeFactoryFunc) Create() NodeModel { return f.New() }
