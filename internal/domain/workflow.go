package domain

import (
	"fmt"

	json "github.com/eleven-am/loom/internal/xjson"
)

type ConnectionKind int

const (
	ConnectionStandard ConnectionKind = iota
	ConnectionBoundaryIn
	ConnectionBoundaryOut
	ConnectionBoundaryThrough
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnectionStandard:
		return "standard"
	case ConnectionBoundaryIn:
		return "boundary_in"
	case ConnectionBoundaryOut:
		return "boundary_out"
	case ConnectionBoundaryThrough:
		return "boundary_through"
	default:
		return fmt.Sprintf("ConnectionKind(%d)", int(k))
	}
}

// ClassifyConnection derives the edge kind from its endpoints; an endpoint
// equal to the owning workflow's id is that workflow's boundary.
func ClassifyConnection(workflow, source, dest NodeID) ConnectionKind {
	switch {
	case source == workflow && dest == workflow:
		return ConnectionBoundaryThrough
	case source == workflow:
		return ConnectionBoundaryIn
	case dest == workflow:
		return ConnectionBoundaryOut
	default:
		return ConnectionStandard
	}
}

// UIInfo is an opaque editor blob tagged with the class that understands it.
type UIInfo struct {
	ClassName string          `json:"extraInfoClassName"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (u *UIInfo) Clone() *UIInfo {
	if u == nil {
		return nil
	}
	clone := &UIInfo{ClassName: u.ClassName}
	if u.Data != nil {
		clone.Data = append(json.RawMessage(nil), u.Data...)
	}
	return clone
}

// Connection is the value form of a directed edge between two ports.
type Connection struct {
	Source     NodeID         `json:"source"`
	SourcePort int            `json:"source_port"`
	Dest       NodeID         `json:"dest"`
	DestPort   int            `json:"dest_port"`
	Kind       ConnectionKind `json:"kind"`
	UIInfo     *UIInfo        `json:"ui_info,omitempty"`
}

func (c Connection) ID() ConnectionID {
	return ConnectionID{Dest: c.Dest, DestPort: c.DestPort}
}

func (c Connection) String() string {
	return fmt.Sprintf("%s(%d) -> %s(%d)", c.Source, c.SourcePort, c.Dest, c.DestPort)
}

// ConnectionTemplate is the persisted form of a connection. Node ends are
// suffixes within the owning workflow, BoundarySuffix for the boundary.
// All fields are fixed at construction; the destination port alone can be
// corrected, once, through WithDestPort.
type ConnectionTemplate struct {
	sourceSuffix int
	sourcePort   int
	destSuffix   int
	destPort     int
	uiInfo       *UIInfo
	corrected    bool
}

// TemplateKey is the comparable identity of a ConnectionTemplate.
type TemplateKey struct {
	SourceSuffix int
	SourcePort   int
	DestSuffix   int
	DestPort     int
}

func NewConnectionTemplate(source, sourcePort, dest, destPort int, uiInfo *UIInfo) ConnectionTemplate {
	return ConnectionTemplate{
		sourceSuffix: source,
		sourcePort:   sourcePort,
		destSuffix:   dest,
		destPort:     destPort,
		uiInfo:       uiInfo.Clone(),
	}
}

// ConnectionTemplateFrom copies a live connection of the given workflow.
func ConnectionTemplateFrom(workflow NodeID, c Connection) ConnectionTemplate {
	source, dest := BoundarySuffix, BoundarySuffix
	if c.Source != workflow {
		source = c.Source.Index()
	}
	if c.Dest != workflow {
		dest = c.Dest.Index()
	}
	return NewConnectionTemplate(source, c.SourcePort, dest, c.DestPort, c.UIInfo)
}

func (t ConnectionTemplate) SourceSuffix() int { return t.sourceSuffix }
func (t ConnectionTemplate) SourcePort() int   { return t.sourcePort }
func (t ConnectionTemplate) DestSuffix() int   { return t.destSuffix }
func (t ConnectionTemplate) DestPort() int     { return t.destPort }
func (t ConnectionTemplate) UIInfo() *UIInfo   { return t.uiInfo.Clone() }
func (t ConnectionTemplate) Corrected() bool   { return t.corrected }

func (t ConnectionTemplate) Kind() ConnectionKind {
	switch {
	case t.sourceSuffix == BoundarySuffix && t.destSuffix == BoundarySuffix:
		return ConnectionBoundaryThrough
	case t.sourceSuffix == BoundarySuffix:
		return ConnectionBoundaryIn
	case t.destSuffix == BoundarySuffix:
		return ConnectionBoundaryOut
	default:
		return ConnectionStandard
	}
}

func (t ConnectionTemplate) Key() TemplateKey {
	return TemplateKey{
		SourceSuffix: t.sourceSuffix,
		SourcePort:   t.sourcePort,
		DestSuffix:   t.destSuffix,
		DestPort:     t.destPort,
	}
}

// WithDestPort returns the corrected copy of t.
func (t ConnectionTemplate) WithDestPort(destPort int) ConnectionTemplate {
	t.destPort = destPort
	t.corrected = true
	t.uiInfo = t.uiInfo.Clone()
	return t
}

// Resolve maps the template onto live ids of the given workflow.
func (t ConnectionTemplate) Resolve(workflow NodeID) (source, dest NodeID) {
	source, dest = workflow, workflow
	if t.sourceSuffix != BoundarySuffix {
		source = workflow.Child(t.sourceSuffix)
	}
	if t.destSuffix != BoundarySuffix {
		dest = workflow.Child(t.destSuffix)
	}
	return source, dest
}

func (t ConnectionTemplate) String() string {
	return fmt.Sprintf("[%d(%d) -> %d( %d)]", t.sourceSuffix, t.sourcePort, t.destSuffix, t.destPort)
}

// WorkflowPortTemplate declares one boundary port of a (sub)workflow.
type WorkflowPortTemplate struct {
	Index int      `json:"index"`
	Type  PortType `json:"type"`
	Name  string   `json:"name,omitempty"`
}
