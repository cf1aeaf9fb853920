package persistence

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/eleven-am/loom/internal/domain"
	json "github.com/eleven-am/loom/internal/xjson"
)

const (
	// Version1 records list their nodes and count destination ports from 1.
	Version1       = "1.0"
	Version2       = "2.0"
	CurrentVersion = Version2
)

// WorkflowRecord is the persisted form of a workflow. Node entries stay raw
// so that each one is decoded by its own loader.
type WorkflowRecord struct {
	Version     string                        `json:"version"`
	Name        string                        `json:"name"`
	Nodes       map[string]json.RawMessage    `json:"nodes"`
	Connections []ConnectionRecord            `json:"connections"`
	InPorts     []domain.WorkflowPortTemplate `json:"in_ports,omitempty"`
	OutPorts    []domain.WorkflowPortTemplate `json:"out_ports,omitempty"`
	UIInfo      *domain.UIInfo                `json:"ui_info,omitempty"`
	Tables      map[string]TableRecord        `json:"tables,omitempty"`

	// node ids a 1.0 record listed more than once
	duplicates []int
}

// legacyRecord is the 1.0 layout.
type legacyRecord struct {
	Version     string                        `json:"version"`
	Name        string                        `json:"name"`
	Nodes       []json.RawMessage             `json:"nodes"`
	Connections []ConnectionRecord            `json:"connections"`
	InPorts     []domain.WorkflowPortTemplate `json:"in_ports,omitempty"`
	OutPorts    []domain.WorkflowPortTemplate `json:"out_ports,omitempty"`
	UIInfo      *domain.UIInfo                `json:"ui_info,omitempty"`
	Tables      map[string]TableRecord        `json:"tables,omitempty"`
}

type NodeRecord struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Factory      string          `json:"factory,omitempty"`
	SettingsFile string          `json:"node_settings_file,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	UIInfo       *domain.UIInfo  `json:"ui_info,omitempty"`
	Workflow     json.RawMessage `json:"workflow,omitempty"`
	Executed     bool            `json:"executed,omitempty"`
	// Outputs holds one table id per output port, empty for a nil object.
	Outputs []string `json:"outputs,omitempty"`
}

// ConnectionRecord uses domain.BoundarySuffix for the workflow boundary.
type ConnectionRecord struct {
	SourceID   int            `json:"sourceID"`
	SourcePort int            `json:"sourcePort"`
	DestID     int            `json:"destID"`
	DestPort   int            `json:"destPort"`
	UIInfo     *domain.UIInfo `json:"ui_info,omitempty"`
}

type TableRecord struct {
	Type domain.PortType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// nodeHeader is the part of a node entry needed to index it.
type nodeHeader struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// settingsFile is the back-reference written for every node.
func settingsFile(name string, suffix int) string {
	return fmt.Sprintf("%s (#%d)/settings.json", name, suffix)
}

func nodeLabel(name string, suffix int) string {
	if name == "" {
		return fmt.Sprintf("#%d", suffix)
	}
	return fmt.Sprintf("%s (#%d)", name, suffix)
}

// DecodeRecord parses data in any supported version. Records without a
// version tag are read as the current version.
func DecodeRecord(data []byte) (*WorkflowRecord, error) {
	return decodeRecordAs(data, CurrentVersion)
}

// decodeRecordAs reads untagged records, such as nested workflows, as
// fallback.
func decodeRecordAs(data []byte, fallback string) (*WorkflowRecord, error) {
	var header struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, domain.NewLoadError("decode_record", "record is not readable", err)
	}
	version := header.Version
	if version == "" {
		version = fallback
	}

	switch version {
	case Version2:
		var record WorkflowRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, domain.NewLoadError("decode_record", "record is not readable", err)
		}
		record.Version = Version2
		return &record, nil
	case Version1:
		return decodeLegacy(data)
	default:
		return nil, domain.NewLoadError("decode_record", fmt.Sprintf("unsupported record version %q", header.Version), domain.ErrInvalidInput)
	}
}

// decodeLegacy keys 1.0 node entries by their id. An entry whose id cannot
// be read is kept under a negative key so that it still reports an error.
// Of several entries sharing an id the first one is kept.
func decodeLegacy(data []byte) (*WorkflowRecord, error) {
	var legacy legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, domain.NewLoadError("decode_record", "record is not readable", err)
	}
	record := &WorkflowRecord{
		Version:     Version1,
		Name:        legacy.Name,
		Nodes:       make(map[string]json.RawMessage, len(legacy.Nodes)),
		Connections: legacy.Connections,
		InPorts:     legacy.InPorts,
		OutPorts:    legacy.OutPorts,
		UIInfo:      legacy.UIInfo,
		Tables:      legacy.Tables,
	}
	for i, raw := range legacy.Nodes {
		var header nodeHeader
		key := strconv.Itoa(-(i + 1))
		if err := json.Unmarshal(raw, &header); err == nil && header.ID > 0 {
			key = strconv.Itoa(header.ID)
		}
		if _, exists := record.Nodes[key]; exists {
			record.duplicates = append(record.duplicates, header.ID)
			continue
		}
		record.Nodes[key] = raw
	}
	return record, nil
}

// Encode writes the record in the current layout.
func (r *WorkflowRecord) Encode() ([]byte, error) {
	out := *r
	out.Version = CurrentVersion
	return json.MarshalIndent(&out, "", "  ")
}

func (r *WorkflowRecord) sortedConnections() []ConnectionRecord {
	conns := append([]ConnectionRecord(nil), r.Connections...)
	sort.Slice(conns, func(i, j int) bool {
		a, b := conns[i], conns[j]
		if a.DestID != b.DestID {
			return a.DestID < b.DestID
		}
		if a.DestPort != b.DestPort {
			return a.DestPort < b.DestPort
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.SourcePort < b.SourcePort
	})
	return conns
}
