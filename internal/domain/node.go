package domain

import (
	"fmt"
	"strings"
)

type NodeState int

const (
	StateIdle NodeState = iota
	StateConfigured
	StateConfigureFailed
	StateQueued
	StateExecuting
	StateExecuted
	StateFailed
)

var nodeStateNames = map[NodeState]string{
	StateIdle:            "IDLE",
	StateConfigured:      "CONFIGURED",
	StateConfigureFailed: "CONFIGURE_FAILED",
	StateQueued:          "QUEUED",
	StateExecuting:       "EXECUTING",
	StateExecuted:        "EXECUTED",
	StateFailed:          "FAILED",
}

// Reset is always legal and therefore absent from this table.
var nodeStateTransitions = map[NodeState][]NodeState{
	StateIdle:            {StateConfigured, StateConfigureFailed},
	StateConfigured:      {StateConfigured, StateConfigureFailed, StateQueued},
	StateConfigureFailed: {StateConfigured, StateConfigureFailed},
	StateQueued:          {StateExecuting, StateConfigured},
	StateExecuting:       {StateExecuted, StateFailed},
	StateExecuted:        {},
	StateFailed:          {},
}

func (s NodeState) String() string {
	if name, ok := nodeStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NodeState(%d)", int(s))
}

// InProgress is true only while the node's computation runs.
func (s NodeState) InProgress() bool {
	return s == StateExecuting
}

// Configurable reports whether output specs may be recomputed in this state.
func (s NodeState) Configurable() bool {
	return s == StateIdle || s == StateConfigured || s == StateConfigureFailed
}

func CanTransition(from, to NodeState) bool {
	if to == StateIdle {
		return true
	}
	for _, allowed := range nodeStateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseNodeState(s string) (NodeState, error) {
	for state, name := range nodeStateNames {
		if strings.EqualFold(name, s) {
			return state, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown node state %q: %w", s, ErrInvalidInput)
}

func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeState) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NodeStatus is a read-only snapshot row describing one container.
type NodeStatus struct {
	ID      NodeID    `json:"id"`
	Name    string    `json:"name"`
	Factory string    `json:"factory,omitempty"`
	State   NodeState `json:"state"`
	Message string    `json:"message,omitempty"`
}
