package engine

import (
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Inspector is the handle returned by OutPort.OpenInspector. Close frees
// the port's inspector slot and closes the view exactly once.
type Inspector struct {
	id   string
	view ports.InspectorView
	port *OutPort

	once sync.Once
	err  error
}

func (i *Inspector) ID() string                { return i.id }
func (i *Inspector) Name() string              { return i.view.Name() }
func (i *Inspector) View() ports.InspectorView { return i.view }

func (i *Inspector) Close() error {
	i.once.Do(func() {
		i.port.release(i)
		i.err = i.view.Close()
	})
	return i.err
}

type snapshotInspectorFactory struct{}

func (snapshotInspectorFactory) OpenView(name string, port ports.PortQuery) (ports.InspectorView, error) {
	return &SnapshotView{name: name, port: port}, nil
}

// SnapshotView is the default inspector: it reads the port through its
// query interface until closed.
type SnapshotView struct {
	name   string
	mu     sync.Mutex
	port   ports.PortQuery
	closed bool
}

func (v *SnapshotView) Name() string { return v.name }

func (v *SnapshotView) Spec() domain.PortObjectSpec {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.port.PortObjectSpec()
}

func (v *SnapshotView) Object() domain.PortObject {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.port.PortObject()
}

func (v *SnapshotView) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *SnapshotView) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.port = nil
	return nil
}
