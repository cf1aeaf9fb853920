package ports

import (
	"github.com/eleven-am/loom/internal/domain"
	json "github.com/eleven-am/loom/internal/xjson"
)

type NodeRegistryPort interface {
	RegisterFactory(factory NodeFactory) error
	CreateNode(factoryName string) (NodeModel, error)
	HasFactory(factoryName string) bool
	ListFactories() []string
	UnregisterFactory(factoryName string) error

	RegisterCodec(codec PortObjectCodec) error
	Codec(portType domain.PortType) (PortObjectCodec, error)
}

// PortObjectCodec converts port objects of one port type to and from their
// persisted form.
type PortObjectCodec interface {
	PortType() domain.PortType
	Encode(obj domain.PortObject) (json.RawMessage, error)
	Decode(data json.RawMessage) (domain.PortObject, error)
}

type NodeRegistrationError struct {
	FactoryName string
	Reason      string
}

func (e *NodeRegistrationError) Error() string {
	return "node registration failed for " + e.FactoryName + ": " + e.Reason
}
