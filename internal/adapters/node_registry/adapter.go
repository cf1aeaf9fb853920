package node_registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Adapter is the in-process NodeRegistryPort. It maps factory names to node
// factories and port type names to the codecs persisting their objects.
type Adapter struct {
	factories map[string]ports.NodeFactory
	codecs    map[string]ports.PortObjectCodec
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewAdapter returns a registry that already knows how to persist tables.
func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Adapter{
		factories: make(map[string]ports.NodeFactory),
		codecs:    make(map[string]ports.PortObjectCodec),
		logger:    logger.With("component", "node-registry"),
	}
	r.codecs[domain.PortTypeTable.Name] = NewTableCodec()
	return r
}

func (r *Adapter) RegisterFactory(factory ports.NodeFactory) error {
	if factory == nil {
		r.logger.Error("attempted to register nil factory")
		return &ports.NodeRegistrationError{
			FactoryName: "<nil>",
			Reason:      "factory cannot be nil",
		}
	}

	name := factory.Name()
	if name == "" {
		r.logger.Error("attempted to register factory with empty name")
		return &ports.NodeRegistrationError{
			FactoryName: name,
			Reason:      "factory name cannot be empty",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		r.logger.Debug("factory registration failed - already exists", "factory", name)
		return &ports.NodeRegistrationError{
			FactoryName: name,
			Reason:      "factory already registered",
		}
	}

	r.factories[name] = factory
	r.logger.Debug("factory registered", "factory", name, "total_factories", len(r.factories))
	return nil
}

// CreateNode returns a fresh model from the named factory.
func (r *Adapter) CreateNode(factoryName string) (ports.NodeModel, error) {
	r.mu.RLock()
	factory, exists := r.factories[factoryName]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("factory not found", "factory", factoryName)
		return nil, domain.NewNotFoundError("create_node", "no factory named "+factoryName)
	}

	model := factory.Create()
	if model == nil {
		return nil, &ports.NodeRegistrationError{
			FactoryName: factoryName,
			Reason:      "factory returned nil model",
		}
	}
	return model, nil
}

func (r *Adapter) HasFactory(factoryName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[factoryName]
	return exists
}

func (r *Adapter) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Adapter) UnregisterFactory(factoryName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[factoryName]; !exists {
		r.logger.Debug("factory unregistration failed - not found", "factory", factoryName)
		return domain.NewNotFoundError("unregister_factory", "no factory named "+factoryName)
	}

	delete(r.factories, factoryName)
	r.logger.Debug("factory unregistered", "factory", factoryName, "remaining_factories", len(r.factories))
	return nil
}

// RegisterCodec installs or replaces the codec for its port type.
func (r *Adapter) RegisterCodec(codec ports.PortObjectCodec) error {
	if codec == nil {
		return &ports.NodeRegistrationError{FactoryName: "<codec>", Reason: "codec cannot be nil"}
	}
	name := codec.PortType().Name
	if name == "" {
		return &ports.NodeRegistrationError{FactoryName: "<codec>", Reason: "codec port type cannot be empty"}
	}

	r.mu.Lock()
	r.codecs[name] = codec
	r.mu.Unlock()

	r.logger.Debug("codec registered", "port_type", name)
	return nil
}

func (r *Adapter) Codec(portType domain.PortType) (ports.PortObjectCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, exists := r.codecs[portType.Name]
	if !exists {
		return nil, domain.NewNotFoundError("codec", "no codec for port type "+portType.Name)
	}
	return codec, nil
}

var _ ports.NodeRegistryPort = (*Adapter)(nil)
