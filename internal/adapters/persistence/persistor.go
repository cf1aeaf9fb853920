package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	json "github.com/eleven-am/loom/internal/xjson"
)

var _ ports.WorkflowPersistor = (*Persistor)(nil)

// Persistor indexes one decoded workflow record. Nodes are loaded through
// independent loaders; connections are immutable templates whose
// destination port alone may be corrected.
type Persistor struct {
	version  string
	name     string
	in       []domain.WorkflowPortTemplate
	out      []domain.WorkflowPortTemplate
	uiInfo   *domain.UIInfo
	loaders  map[int]ports.NodeLoader
	problems *domain.LoadResult

	mu          sync.Mutex
	connections []domain.ConnectionTemplate
}

// NewPersistor indexes record. Node entries are only decoded by their
// loaders; tables go into tables and are decoded on first use.
func NewPersistor(record *WorkflowRecord, registry ports.NodeRegistryPort, tables *TableRepository, logger *slog.Logger) *Persistor {
	if logger == nil {
		logger = slog.Default()
	}
	if tables != nil && len(record.Tables) > 0 {
		tables.AddRecords(record.Tables)
	}

	p := &Persistor{
		version:  record.Version,
		name:     record.Name,
		in:       sortedTemplates(record.InPorts),
		out:      sortedTemplates(record.OutPorts),
		uiInfo:   record.UIInfo.Clone(),
		loaders:  make(map[int]ports.NodeLoader, len(record.Nodes)),
		problems: domain.NewLoadResult(),
	}

	for _, id := range record.duplicates {
		p.problems.AddError(fmt.Sprintf("node entry %d: duplicate node id, entry ignored", id))
	}
	for key, raw := range record.Nodes {
		suffix, err := strconv.Atoi(key)
		if err != nil || suffix == 0 {
			p.problems.AddError(fmt.Sprintf("node entry %q: invalid node id", key))
			continue
		}
		if suffix < 0 {
			p.problems.AddError(fmt.Sprintf("node entry %d: missing node id", -suffix))
			continue
		}
		var header nodeHeader
		_ = json.Unmarshal(raw, &header)
		p.loaders[suffix] = &nodeLoader{
			suffix:   suffix,
			name:     header.Name,
			raw:      raw,
			version:  record.Version,
			registry: registry,
			tables:   tables,
			logger:   logger,
		}
	}

	for _, conn := range record.sortedConnections() {
		p.connections = append(p.connections,
			domain.NewConnectionTemplate(conn.SourceID, conn.SourcePort, conn.DestID, conn.DestPort, conn.UIInfo))
	}
	return p
}

func sortedTemplates(templates []domain.WorkflowPortTemplate) []domain.WorkflowPortTemplate {
	out := append([]domain.WorkflowPortTemplate(nil), templates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (p *Persistor) Version() string                                 { return p.version }
func (p *Persistor) Name() string                                    { return p.name }
func (p *Persistor) NodeLoaderMap() map[int]ports.NodeLoader         { return p.loaders }
func (p *Persistor) InPortTemplates() []domain.WorkflowPortTemplate  { return p.in }
func (p *Persistor) OutPortTemplates() []domain.WorkflowPortTemplate { return p.out }
func (p *Persistor) UIInfo() *domain.UIInfo                          { return p.uiInfo.Clone() }
func (p *Persistor) IndexErrors() *domain.LoadResult                 { return p.problems }

func (p *Persistor) ConnectionSet() []domain.ConnectionTemplate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ConnectionTemplate(nil), p.connections...)
}

// CorrectDestinationPort rewrites the destination port of the template
// identified by key. A template is corrected at most once.
func (p *Persistor) CorrectDestinationPort(key domain.TemplateKey, destPort int) error {
	const op = "correct_dest_port"
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, t := range p.connections {
		if t.Key() != key || t.Corrected() {
			continue
		}
		p.connections[i] = t.WithDestPort(destPort)
		return nil
	}
	for _, t := range p.connections {
		if t.Key() == key {
			return domain.NewInvalidStateError(op, fmt.Sprintf("connection %s was already corrected", t))
		}
	}
	return domain.NewNotFoundError(op, "no such connection")
}

// nodeLoader decodes one node entry and builds its model or nested
// persistor.
type nodeLoader struct {
	suffix   int
	name     string
	raw      json.RawMessage
	version  string
	registry ports.NodeRegistryPort
	tables   *TableRepository
	logger   *slog.Logger
}

func (l *nodeLoader) Suffix() int  { return l.suffix }
func (l *nodeLoader) Name() string { return nodeLabel(l.name, l.suffix) }

func (l *nodeLoader) Load(ctx context.Context) (*ports.LoadedNode, error) {
	const op = "load_node"
	if err := ctx.Err(); err != nil {
		return nil, domain.NewCancelledError(op, "load cancelled", err)
	}

	var record NodeRecord
	if err := json.Unmarshal(l.raw, &record); err != nil {
		return nil, domain.NewLoadError(op, "node entry is not readable", err)
	}
	if record.ID != 0 && record.ID != l.suffix {
		return nil, domain.NewLoadError(op, fmt.Sprintf("node entry id %d does not match key %d", record.ID, l.suffix), nil)
	}

	loaded := &ports.LoadedNode{
		Suffix:  l.suffix,
		Name:    record.Name,
		Factory: record.Factory,
		UIInfo:  record.UIInfo,
	}

	if len(record.Workflow) > 0 {
		nested, err := decodeRecordAs(record.Workflow, l.version)
		if err != nil {
			return nil, err
		}
		loaded.Workflow = NewPersistor(nested, l.registry, l.tables, l.logger)
	} else {
		model, err := l.model(record)
		if err != nil {
			return nil, err
		}
		loaded.Model = model
	}

	if record.Executed {
		loaded.Outputs, loaded.OutputsErr = l.outputs(record.Outputs)
	}
	return loaded, nil
}

func (l *nodeLoader) model(record NodeRecord) (ports.NodeModel, error) {
	const op = "load_node"
	if l.registry == nil {
		return nil, domain.NewLoadError(op, "no node registry configured", nil)
	}
	if record.Factory == "" {
		return nil, domain.NewLoadError(op, "node entry names no factory", nil)
	}
	model, err := l.registry.CreateNode(record.Factory)
	if err != nil {
		return nil, domain.NewLoadError(op, "unknown factory "+record.Factory, err)
	}

	configurable, ok := model.(ports.SettingsModel)
	if !ok || len(record.Settings) == 0 {
		return model, nil
	}
	defaults, err := configurable.Settings()
	if err != nil {
		return nil, domain.NewLoadError(op, "failed to read default settings", err)
	}
	merged, err := domain.MergeSettings(defaults, record.Settings)
	if err != nil {
		return nil, domain.NewLoadError(op, "failed to merge settings", err)
	}
	if err := configurable.LoadSettings(merged); err != nil {
		return nil, domain.NewLoadError(op, "invalid settings", err)
	}
	return model, nil
}

func (l *nodeLoader) outputs(ids []string) ([]domain.PortObject, error) {
	if l.tables == nil {
		return nil, domain.NewLoadError("load_outputs", "no table repository", nil)
	}
	outputs := make([]domain.PortObject, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		obj, err := l.tables.Get(id)
		if err != nil {
			return nil, err
		}
		outputs[i] = obj
	}
	return outputs, nil
}
