package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Loader rebuilds workflows from records. Loading is best effort: every
// node or connection that cannot be restored is reported in the returned
// LoadResult and the rest of the graph is built anyway.
type Loader struct {
	registry    ports.NodeRegistryPort
	concurrency int
	shared      *TableRepository
	logger      *slog.Logger
}

type LoaderOption func(*Loader)

// WithSharedTables lets every load reuse the objects already decoded in
// shared instead of decoding its own copy.
func WithSharedTables(shared *TableRepository) LoaderOption {
	return func(l *Loader) { l.shared = shared }
}

func NewLoader(registry ports.NodeRegistryPort, config domain.EngineConfig, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := config.LoaderConcurrency
	if concurrency <= 0 {
		concurrency = domain.DefaultEngineConfig().LoaderConcurrency
	}
	l := &Loader{
		registry:    registry,
		concurrency: concurrency,
		logger:      logger.With("component", "workflow-loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Loaded is the outcome of one load. Tables belongs to the caller, who
// must merge it into a longer lived repository or discard it.
type Loaded struct {
	Workflow *engine.WorkflowManager
	Result   *domain.LoadResult
	Tables   *TableRepository
}

// restorePlan remembers which nodes were persisted as executed.
type restorePlan struct {
	workflow *engine.WorkflowManager
	label    map[domain.NodeID]string
	outputs  map[domain.NodeID][]domain.PortObject
	nested   map[domain.NodeID]*restorePlan
	result   *domain.LoadResult
}

// Load decodes data and builds a workflow from it. Only a record that is
// structurally unreadable returns an error.
func (l *Loader) Load(ctx context.Context, data []byte, opts ...engine.Option) (*Loaded, error) {
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	return l.LoadRecord(ctx, record, opts...)
}

func (l *Loader) LoadRecord(ctx context.Context, record *WorkflowRecord, opts ...engine.Option) (*Loaded, error) {
	start := time.Now()
	tables := NewTableRepository(l.registry, l.logger).WithShared(l.shared)
	persistor := NewPersistor(record, l.registry, tables, l.logger)

	name := persistor.Name()
	if name == "" {
		name = "workflow"
	}
	options := append([]engine.Option{
		engine.WithRegistry(l.registry),
		engine.WithLogger(l.logger),
		engine.WithWorkflowName(name),
	}, opts...)
	workflow := engine.NewWorkflowManager(options...)
	workflow.SetUIInfo(persistor.UIInfo())

	result := domain.NewLoadResult()
	for _, t := range persistor.InPortTemplates() {
		if _, err := workflow.AddInPort(t.Type, t.Name); err != nil {
			result.AddError(fmt.Sprintf("input port %d: %v", t.Index, err))
		}
	}
	for _, t := range persistor.OutPortTemplates() {
		if _, err := workflow.AddOutPort(t.Type, t.Name); err != nil {
			result.AddError(fmt.Sprintf("output port %d: %v", t.Index, err))
		}
	}

	plan, err := l.populate(ctx, workflow, persistor, result)
	if err != nil {
		_ = workflow.Close()
		tables.Discard()
		return nil, err
	}
	l.restore(plan)
	collect(plan)

	l.logger.Info("workflow loaded",
		"workflow", name,
		"version", persistor.Version(),
		"nodes", len(workflow.NodeIDs()),
		"errors", result.Len(),
		"duration", time.Since(start))
	if result.HasErrors() {
		l.logger.Warn("workflow loaded with errors", "workflow", name, "errors", result.String())
	}
	return &Loaded{Workflow: workflow, Result: result, Tables: tables}, nil
}

type loadOutcome struct {
	loader ports.NodeLoader
	node   *ports.LoadedNode
	err    error
}

// populate adds the nodes and connections of persistor to workflow. Only
// cancellation aborts it.
func (l *Loader) populate(ctx context.Context, workflow *engine.WorkflowManager, persistor ports.WorkflowPersistor, result *domain.LoadResult) (*restorePlan, error) {
	result.Merge(persistor.IndexErrors())

	loaders := persistor.NodeLoaderMap()
	suffixes := make([]int, 0, len(loaders))
	for suffix := range loaders {
		suffixes = append(suffixes, suffix)
	}
	sort.Ints(suffixes)

	outcomes := make([]loadOutcome, len(suffixes))
	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for i, suffix := range suffixes {
		loader := loaders[suffix]
		g.Go(func() error {
			node, err := loader.Load(ctx)
			outcomes[i] = loadOutcome{loader: loader, node: node, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, domain.NewCancelledError("load", "load cancelled", err)
	}

	plan := &restorePlan{
		workflow: workflow,
		label:    make(map[domain.NodeID]string),
		outputs:  make(map[domain.NodeID][]domain.PortObject),
		nested:   make(map[domain.NodeID]*restorePlan),
		result:   result,
	}
	failed := make(map[int]bool)

	for _, outcome := range outcomes {
		suffix := outcome.loader.Suffix()
		label := outcome.loader.Name()
		if outcome.err != nil {
			result.AddError(fmt.Sprintf("%s: %v", label, outcome.err))
			failed[suffix] = true
			continue
		}
		node := outcome.node
		label = nodeLabel(node.Name, suffix)

		id, err := l.addNode(ctx, workflow, node, label, plan)
		if err != nil {
			if domain.IsCancelled(err) {
				return nil, err
			}
			result.AddError(fmt.Sprintf("%s: %v", label, err))
			failed[suffix] = true
			continue
		}
		plan.label[id] = label
		if node.OutputsErr != nil {
			result.AddError(fmt.Sprintf("%s: outputs not restored: %v", label, node.OutputsErr))
		} else if node.Outputs != nil {
			plan.outputs[id] = node.Outputs
		}
	}

	if persistor.Version() == Version1 {
		for _, t := range persistor.ConnectionSet() {
			if err := persistor.CorrectDestinationPort(t.Key(), t.DestPort()-1); err != nil {
				result.AddError(fmt.Sprintf("connection %s: %v", t, err))
			}
		}
	}

	for _, t := range persistor.ConnectionSet() {
		if failed[t.SourceSuffix()] || failed[t.DestSuffix()] {
			continue
		}
		source, dest := t.Resolve(workflow.ID())
		if _, err := workflow.AddConnectionWithUI(ctx, source, t.SourcePort(), dest, t.DestPort(), t.UIInfo()); err != nil {
			result.AddError(fmt.Sprintf("connection %s: %v", t, err))
		}
	}
	return plan, nil
}

func (l *Loader) addNode(ctx context.Context, workflow *engine.WorkflowManager, node *ports.LoadedNode, label string, plan *restorePlan) (domain.NodeID, error) {
	opts := []engine.NodeOption{
		engine.WithSuffix(node.Suffix),
		engine.WithNodeUIInfo(node.UIInfo),
	}
	if node.Name != "" {
		opts = append(opts, engine.WithNodeName(node.Name))
	}

	if node.Workflow == nil {
		if node.Factory != "" {
			opts = append(opts, engine.WithFactoryName(node.Factory))
		}
		return workflow.AddNode(node.Model, opts...)
	}

	child, id, err := workflow.AddSubWorkflow(node.Workflow.InPortTemplates(), node.Workflow.OutPortTemplates(), opts...)
	if err != nil {
		return "", err
	}
	child.SetUIInfo(node.Workflow.UIInfo())

	childResult := domain.NewLoadResult()
	nested, err := l.populate(ctx, child, node.Workflow, childResult)
	if err != nil {
		return "", err
	}
	plan.nested[id] = nested
	return id, nil
}

// restore marks persisted executed nodes EXECUTED again, upstream first. A
// nested workflow is only restored below an executed container.
func (l *Loader) restore(plan *restorePlan) {
	for _, id := range plan.workflow.ExecutionOrder() {
		outputs, executed := plan.outputs[id]
		if !executed {
			continue
		}
		if err := plan.workflow.RestoreExecuted(id, outputs); err != nil {
			plan.result.AddError(fmt.Sprintf("%s: outputs not restored: %v", plan.label[id], err))
			continue
		}
		if nested, ok := plan.nested[id]; ok {
			l.restore(nested)
		}
	}
}

// collect folds the results of nested workflows into their parents.
func collect(plan *restorePlan) {
	ids := make([]domain.NodeID, 0, len(plan.nested))
	for id := range plan.nested {
		ids = append(ids, id)
	}
	domain.SortNodeIDs(ids)
	for _, id := range ids {
		nested := plan.nested[id]
		collect(nested)
		plan.result.AddNested(plan.label[id], nested.result)
	}
}
