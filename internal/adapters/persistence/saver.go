package persistence

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	json "github.com/eleven-am/loom/internal/xjson"
)

// Saver writes workflows as records. Outputs of executed nodes are stored
// once per object in the record's table section.
type Saver struct {
	registry ports.NodeRegistryPort
	logger   *slog.Logger
}

func NewSaver(registry ports.NodeRegistryPort, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		registry: registry,
		logger:   logger.With("component", "workflow-saver"),
	}
}

// tableWriter assigns table ids while one record is written.
type tableWriter struct {
	registry ports.NodeRegistryPort
	seen     map[domain.PortObject]string
	tables   map[string]TableRecord
}

func (w *tableWriter) write(obj domain.PortObject) (string, error) {
	comparable := reflect.TypeOf(obj).Comparable()
	if comparable {
		if id, ok := w.seen[obj]; ok {
			return id, nil
		}
	}
	if w.registry == nil {
		return "", fmt.Errorf("no codec registry configured")
	}
	codec, err := w.registry.Codec(obj.PortType())
	if err != nil {
		return "", err
	}
	data, err := codec.Encode(obj)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	w.tables[id] = TableRecord{Type: obj.PortType(), Data: data}
	if comparable {
		w.seen[obj] = id
	}
	return id, nil
}

// Save exports workflow and encodes it in the current record layout.
func (s *Saver) Save(workflow *engine.WorkflowManager) ([]byte, error) {
	record, err := s.Record(workflow)
	if err != nil {
		return nil, err
	}
	data, err := record.Encode()
	if err != nil {
		return nil, domain.NewStructuralError("save", "failed to encode record", err)
	}
	return data, nil
}

func (s *Saver) Record(workflow *engine.WorkflowManager) (*WorkflowRecord, error) {
	tables := &tableWriter{
		registry: s.registry,
		seen:     make(map[domain.PortObject]string),
		tables:   make(map[string]TableRecord),
	}
	export := workflow.Export()
	record, err := s.record(export, tables)
	if err != nil {
		return nil, err
	}
	if len(tables.tables) > 0 {
		record.Tables = tables.tables
	}
	s.logger.Debug("workflow saved", "workflow", export.Name, "nodes", len(export.Nodes), "tables", len(tables.tables))
	return record, nil
}

func (s *Saver) record(export *engine.WorkflowExport, tables *tableWriter) (*WorkflowRecord, error) {
	record := &WorkflowRecord{
		Version:  CurrentVersion,
		Name:     export.Name,
		Nodes:    make(map[string]json.RawMessage, len(export.Nodes)),
		InPorts:  export.InPorts,
		OutPorts: export.OutPorts,
		UIInfo:   export.UIInfo,
	}

	for _, node := range export.Nodes {
		entry, err := s.node(node, tables)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, domain.NewStructuralError("save", "failed to encode node", err).WithNode(node.ID)
		}
		record.Nodes[strconv.Itoa(node.ID.Index())] = raw
	}

	for _, conn := range export.Connections {
		t := domain.ConnectionTemplateFrom(export.ID, conn)
		record.Connections = append(record.Connections, ConnectionRecord{
			SourceID:   t.SourceSuffix(),
			SourcePort: t.SourcePort(),
			DestID:     t.DestSuffix(),
			DestPort:   t.DestPort(),
			UIInfo:     t.UIInfo(),
		})
	}
	return record, nil
}

func (s *Saver) node(node engine.NodeExport, tables *tableWriter) (*NodeRecord, error) {
	suffix := node.ID.Index()
	entry := &NodeRecord{
		ID:           suffix,
		Name:         node.Name,
		Factory:      node.Factory,
		SettingsFile: settingsFile(node.Name, suffix),
		UIInfo:       node.UIInfo,
	}

	if node.Workflow != nil {
		nested, err := s.record(node.Workflow, tables)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(nested)
		if err != nil {
			return nil, domain.NewStructuralError("save", "failed to encode nested workflow", err).WithNode(node.ID)
		}
		entry.Workflow = raw
	} else if configurable, ok := node.Model.(ports.SettingsModel); ok {
		settings, err := configurable.Settings()
		if err != nil {
			return nil, domain.NewStructuralError("save", "failed to read settings", err).WithNode(node.ID)
		}
		entry.Settings = settings
	}

	if node.State != domain.StateExecuted {
		return entry, nil
	}
	outputs := make([]string, len(node.Outputs))
	for i, obj := range node.Outputs {
		if obj == nil {
			continue
		}
		id, err := tables.write(obj)
		if err != nil {
			// the node is saved unexecuted rather than losing the record
			s.logger.Warn("output not persisted", "node_id", node.ID, "port", i, "error", err)
			return entry, nil
		}
		outputs[i] = id
	}
	entry.Executed = true
	entry.Outputs = outputs
	return entry, nil
}
