// Package loom is a dataflow workflow engine. Workflows are graphs of nodes
// joined by typed ports; the engine configures and executes nodes as their
// inputs become available, persists graphs together with computed results,
// and serves the same operations locally or from a remote backend.
//
// Basic usage:
//
//	rt, _ := loom.New(loom.NewConfig("demo", "./data", logger))
//	defer rt.Close()
//	rt.RegisterFactory(myFactory)
//
//	wf := rt.NewWorkflow("orders")
//	a, _ := wf.CreateNode("csv.reader")
//	b, _ := wf.CreateNode("rows.filter")
//	wf.AddConnection(ctx, a, 0, b, 0)
//	loom.CallVoid(ctx, rt, rt.Local(wf), loom.Execute(b), nil)
//	rt.SaveWorkflow("orders", wf)
package loom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eleven-am/loom/internal/adapters/bridge"
	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/adapters/notify"
	"github.com/eleven-am/loom/internal/adapters/observability"
	"github.com/eleven-am/loom/internal/adapters/persistence"
	"github.com/eleven-am/loom/internal/adapters/remote"
	"github.com/eleven-am/loom/internal/adapters/storage"
	"github.com/eleven-am/loom/internal/adapters/tracing"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/metadata"
	"github.com/eleven-am/loom/internal/ports"
)

type NodeID = domain.NodeID

type NodeState = domain.NodeState

const (
	StateIdle            = domain.StateIdle
	StateConfigured      = domain.StateConfigured
	StateConfigureFailed = domain.StateConfigureFailed
	StateQueued          = domain.StateQueued
	StateExecuting       = domain.StateExecuting
	StateExecuted        = domain.StateExecuted
	StateFailed          = domain.StateFailed
)

type NodeStatus = domain.NodeStatus

type PortType = domain.PortType

var (
	PortTypeAny   = domain.PortTypeAny
	PortTypeTable = domain.PortTypeTable
	PortTypeModel = domain.PortTypeModel
)

type PortObject = domain.PortObject

type PortObjectSpec = domain.PortObjectSpec

type Table = domain.Table

type Spec = domain.Spec

type UIInfo = domain.UIInfo

type Connection = domain.Connection

type ConnectionID = domain.ConnectionID

type WorkflowEvent = domain.WorkflowEvent

type LoadResult = domain.LoadResult

// Error is the typed error every operation returns; Kind tells callers how
// to react regardless of whether the operation ran locally or remotely.
type Error = domain.Error

type ErrorKind = domain.ErrorKind

var ErrUseAsync = domain.ErrUseAsync

type NodeModel = ports.NodeModel

type SettingsModel = ports.SettingsModel

type NodeFactory = ports.NodeFactory

type NodeFactoryFunc = ports.NodeFactoryFunc

type PortObjectCodec = ports.PortObjectCodec

type ProgressMonitor = ports.ProgressMonitor

type Notifier = ports.Notifier

// Workflow is a graph of node containers.
type Workflow = engine.WorkflowManager

type Target = bridge.Target

type Capability = bridge.Capability

const (
	CapabilitySync  = bridge.CapabilitySync
	CapabilityAsync = bridge.CapabilityAsync
)

type Operation[T any] = bridge.Operation[T]

var (
	RemoveNodesAndConnections = bridge.RemoveNodesAndConnections
	AddConnection             = bridge.AddConnection
	RemoveConnection          = bridge.RemoveConnection
	Configure                 = bridge.Configure
	Reset                     = bridge.Reset
	Execute                   = bridge.Execute
	NodeStatusOf              = bridge.NodeStatus
)

// Runtime owns the process wide state: node registry, record store, the
// global table repository, the bridge and the optional servers.
type Runtime struct {
	config   *domain.Config
	base     *slog.Logger
	logger   *slog.Logger
	meta     *metadata.Provider
	registry *node_registry.Adapter
	metrics  *prometheus.Registry
	engine   *engine.Metrics
	storage  *storage.AppStorage
	records  *persistence.RecordStore
	loader   *persistence.Loader
	saver    *persistence.Saver
	tables   *persistence.TableRepository
	notifier *notify.Notifier
	tracing  *tracing.Provider
	bridge   *bridge.Bridge

	mu      sync.Mutex
	closed  bool
	served  bool
	servers []*remote.Server
	clients []*remote.Client
	asyncs  []*engine.AsyncManager
	cancel  []context.CancelFunc
}

func newLogger(config *domain.Config) *slog.Logger {
	if config.Logger != nil {
		return config.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LogLevel.SlogLevel()}))
}

// New validates config and opens storage.
func New(config *Config) (*Runtime, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(config)
	r := &Runtime{
		config:   config,
		base:     logger,
		logger:   logger.With("component", "runtime", "name", config.Name),
		meta:     metadata.NewProvider(),
		registry: node_registry.NewAdapter(logger),
		metrics:  prometheus.NewRegistry(),
		notifier: notify.New(logger, 0),
	}
	r.engine = engine.NewMetrics(config.Metrics.Namespace, r.metrics)

	store, err := storage.Open(config.Storage, logger)
	if err != nil {
		return nil, err
	}
	r.storage = store

	provider, err := tracing.Setup(context.Background(), config.Tracing, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	r.tracing = provider

	r.records = persistence.NewRecordStore(store, logger)
	r.tables = persistence.NewTableRepository(r.registry, logger)
	r.loader = persistence.NewLoader(r.registry, config.Engine, logger, persistence.WithSharedTables(r.tables))
	r.saver = persistence.NewSaver(r.registry, logger)
	r.bridge = bridge.New(config.Bridge,
		bridge.WithLogger(logger),
		bridge.WithNotifier(r.notifier),
		bridge.WithTracerProvider(provider.TracerProvider()),
		bridge.WithMetrics(bridge.NewMetrics(config.Metrics.Namespace, r.metrics)))

	r.logger.Info("runtime started", "boot_id", r.meta.BootID())
	return r, nil
}

func (r *Runtime) Logger() *slog.Logger { return r.logger }

func (r *Runtime) Bridge() *bridge.Bridge { return r.bridge }

// Warnings returns the most recent user-facing warnings.
func (r *Runtime) Warnings() []notify.Warning { return r.notifier.Recent() }

func (r *Runtime) MetricsGatherer() prometheus.Gatherer { return r.metrics }

func (r *Runtime) RegisterFactory(factory NodeFactory) error {
	return r.registry.RegisterFactory(factory)
}

func (r *Runtime) RegisterCodec(codec PortObjectCodec) error {
	return r.registry.RegisterCodec(codec)
}

func (r *Runtime) workflowOptions(name string) []engine.Option {
	return []engine.Option{
		engine.WithLogger(r.base),
		engine.WithRegistry(r.registry),
		engine.WithEngineConfig(r.config.Engine),
		engine.WithMetrics(r.engine),
		engine.WithWorkflowName(name),
	}
}

// NewWorkflow creates an empty workflow bound to the runtime's registry.
func (r *Runtime) NewWorkflow(name string) *Workflow {
	return engine.NewWorkflowManager(r.workflowOptions(name)...)
}

// SaveWorkflow stores wf under name and returns the stored version.
func (r *Runtime) SaveWorkflow(name string, wf *Workflow) (int64, error) {
	data, err := r.saver.Save(wf)
	if err != nil {
		return 0, err
	}
	return r.records.Put(name, data, 0)
}

// LoadWorkflow restores the workflow stored under name. Problems with
// single nodes or connections are reported in the LoadResult; only an
// unreadable record fails the call.
func (r *Runtime) LoadWorkflow(ctx context.Context, name string) (*Workflow, *LoadResult, error) {
	data, _, err := r.records.Get(name)
	if err != nil {
		return nil, nil, err
	}
	return r.Import(ctx, name, data)
}

// Import builds a workflow from an encoded record.
func (r *Runtime) Import(ctx context.Context, name string, data []byte) (*Workflow, *LoadResult, error) {
	loaded, err := r.loader.Load(ctx, data, r.workflowOptions(name)...)
	if err != nil {
		return nil, nil, err
	}
	loaded.Tables.MergeInto(r.tables)
	if loaded.Result.Len() > 0 {
		r.notifier.Warn(fmt.Sprintf("workflow %s loaded with errors", name), loaded.Result.String())
	}
	return loaded.Workflow, loaded.Result, nil
}

// Export encodes wf without storing it.
func (r *Runtime) Export(wf *Workflow) ([]byte, error) {
	return r.saver.Save(wf)
}

func (r *Runtime) DeleteWorkflow(name string) error {
	return r.records.Delete(name)
}

func (r *Runtime) ListWorkflows() ([]string, error) {
	return r.records.List()
}

// Local returns a synchronous target for wf.
func (r *Runtime) Local(wf *Workflow) Target {
	return bridge.SyncTarget(wf.Name(), wf)
}

// Deferred returns a target that runs wf's operations in the background,
// so callers wait through the bridge with progress and cancellation.
func (r *Runtime) Deferred(wf *Workflow) Target {
	async := engine.NewAsyncManager(wf)
	r.mu.Lock()
	r.asyncs = append(r.asyncs, async)
	r.mu.Unlock()
	return bridge.DualTarget(wf.Name(), wf, async)
}

// Serve exposes wf on the configured transport address.
// Only the first server's gRPC collectors are registered with the runtime.
func (r *Runtime) Serve(ctx context.Context, wf *Workflow) (*remote.Server, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrClosed
	}
	var opts []remote.ServerOption
	if !r.served {
		opts = append(opts, remote.WithMetricsRegisterer(r.metrics))
		r.served = true
	}
	r.mu.Unlock()

	server := remote.NewServer(wf, r.config.Transport, r.base, opts...)
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.servers = append(r.servers, server)
	r.mu.Unlock()
	return server, nil
}

// Connect dials a remote workflow and returns an async-only target for it.
func (r *Runtime) Connect(name, address string) (Target, error) {
	client, err := remote.Dial(address, r.config.Transport, r.base)
	if err != nil {
		return Target{}, err
	}
	r.mu.Lock()
	r.clients = append(r.clients, client)
	r.mu.Unlock()
	return bridge.AsyncTarget(name, client), nil
}

// StartObservability serves health, metrics and wf's snapshot over HTTP
// when observability is enabled. It returns immediately.
func (r *Runtime) StartObservability(ctx context.Context, wf *Workflow) bool {
	if !r.config.Observability.Enabled {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	server := observability.NewServer(r.config.Observability, r.base,
		observability.WithMetadata(r.meta),
		observability.WithGatherer(r.metrics),
		observability.WithWorkflow(wf),
		observability.WithReady(r.ready))
	go func() {
		if err := server.Start(ctx); err != nil {
			r.logger.Error("observability server stopped", "error", err)
		}
	}()
	r.mu.Lock()
	r.cancel = append(r.cancel, cancel)
	r.mu.Unlock()
	return true
}

func (r *Runtime) ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrClosed
	}
	return nil
}

// Call runs op against target through the runtime's bridge.
func Call[T any](ctx context.Context, r *Runtime, target Target, op Operation[T], monitor ProgressMonitor) (T, error) {
	return bridge.Call(ctx, r.bridge, target, op, monitor)
}

func CallVoid(ctx context.Context, r *Runtime, target Target, op Operation[struct{}], monitor ProgressMonitor) error {
	return bridge.CallVoid(ctx, r.bridge, target, op, monitor)
}

// Close stops servers and clients, flushes traces and closes storage.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	servers, clients, asyncs, cancels := r.servers, r.clients, r.asyncs, r.cancel
	r.mu.Unlock()

	var errs []error
	for _, cancel := range cancels {
		cancel()
	}
	for _, s := range servers {
		errs = append(errs, s.Stop())
	}
	for _, c := range clients {
		errs = append(errs, c.Close())
	}
	for _, a := range asyncs {
		a.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, r.tracing.Shutdown(ctx))
	r.tables.Discard()
	errs = append(errs, r.storage.Close())

	r.logger.Info("runtime stopped", "uptime", r.meta.Uptime())
	return errors.Join(errs...)
}
