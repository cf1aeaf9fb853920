package engine

import "github.com/eleven-am/loom/internal/domain"

// ConnectionModel is a directed edge owned by a WorkflowManager. It is
// immutable; changing an edge means removing it and adding a new one.
type ConnectionModel struct {
	conn domain.Connection
}

func newConnectionModel(workflow domain.NodeID, source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int, ui *domain.UIInfo) *ConnectionModel {
	return &ConnectionModel{conn: domain.Connection{
		Source:     source,
		SourcePort: sourcePort,
		Dest:       dest,
		DestPort:   destPort,
		Kind:       domain.ClassifyConnection(workflow, source, dest),
		UIInfo:     ui.Clone(),
	}}
}

func (c *ConnectionModel) ID() domain.ConnectionID     { return c.conn.ID() }
func (c *ConnectionModel) Source() domain.NodeID       { return c.conn.Source }
func (c *ConnectionModel) SourcePort() int             { return c.conn.SourcePort }
func (c *ConnectionModel) Dest() domain.NodeID         { return c.conn.Dest }
func (c *ConnectionModel) DestPort() int               { return c.conn.DestPort }
func (c *ConnectionModel) Kind() domain.ConnectionKind { return c.conn.Kind }

// Connection returns a copy safe to hand to callers.
func (c *ConnectionModel) Connection() domain.Connection {
	conn := c.conn
	conn.UIInfo = c.conn.UIInfo.Clone()
	return conn
}

func (c *ConnectionModel) touches(id domain.NodeID) bool {
	return c.conn.Source == id || c.conn.Dest == id
}

func (c *ConnectionModel) isNodeToNode() bool {
	return c.conn.Kind == domain.ConnectionStandard
}
