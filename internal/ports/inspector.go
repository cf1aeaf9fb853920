package ports

import "github.com/eleven-am/loom/internal/domain"

// PortQuery is the read-only view of an output port handed to observers.
type PortQuery interface {
	Owner() domain.NodeID
	Index() int
	PortType() domain.PortType
	PortObjectSpec() domain.PortObjectSpec
	PortObject() domain.PortObject
	InProgress() bool
}

// InspectorView is an observer attached to one output port. Close must be
// idempotent.
type InspectorView interface {
	Name() string
	Close() error
}

type InspectorFactory interface {
	OpenView(name string, port PortQuery) (InspectorView, error)
}
