package domain

import "time"

type WorkflowEventType int

const (
	EventNodeAdded WorkflowEventType = iota
	EventNodeRemoved
	EventConnectionAdded
	EventConnectionRemoved
	EventNodeStateChanged
	EventPortsChanged
)

func (t WorkflowEventType) String() string {
	switch t {
	case EventNodeAdded:
		return "node_added"
	case EventNodeRemoved:
		return "node_removed"
	case EventConnectionAdded:
		return "connection_added"
	case EventConnectionRemoved:
		return "connection_removed"
	case EventNodeStateChanged:
		return "node_state_changed"
	case EventPortsChanged:
		return "ports_changed"
	default:
		return "unknown"
	}
}

// WorkflowEvent is emitted to listeners after the mutation producing it has
// released the workflow lock.
type WorkflowEvent struct {
	Type       WorkflowEventType `json:"type"`
	WorkflowID NodeID            `json:"workflow_id"`
	NodeID     NodeID            `json:"node_id,omitempty"`
	Connection *Connection       `json:"connection,omitempty"`
	OldState   NodeState         `json:"old_state"`
	NewState   NodeState         `json:"new_state"`
	Message    string            `json:"message,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
