package remote

import (
	"errors"

	"github.com/eleven-am/loom/internal/domain"
	json "github.com/eleven-am/loom/internal/xjson"
)

const (
	opRemoveNodesAndConnections = "remove_nodes_and_connections"
	opAddConnection             = "add_connection"
	opRemoveConnection          = "remove_connection"
	opConfigure                 = "configure"
	opReset                     = "reset"
	opExecute                   = "execute"
	opNodeStatus                = "node_status"
)

type request struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

// wireError carries a *domain.Error across the hop field by field.
type wireError struct {
	Kind    string        `json:"kind"`
	Op      string        `json:"op,omitempty"`
	Node    domain.NodeID `json:"node,omitempty"`
	Message string        `json:"message"`
	Cause   string        `json:"cause,omitempty"`
}

type removePayload struct {
	Nodes       []domain.NodeID       `json:"nodes,omitempty"`
	Connections []domain.ConnectionID `json:"connections,omitempty"`
}

type connectPayload struct {
	Source     domain.NodeID `json:"source"`
	SourcePort int           `json:"source_port"`
	Dest       domain.NodeID `json:"dest"`
	DestPort   int           `json:"dest_port"`
}

type nodesPayload struct {
	Nodes []domain.NodeID `json:"nodes,omitempty"`
}

type nodePayload struct {
	Node domain.NodeID `json:"node"`
}

func encodeError(err error) *wireError {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		return &wireError{Kind: domain.KindOf(err).String(), Message: err.Error()}
	}
	w := &wireError{
		Kind:    domainErr.Kind.String(),
		Op:      domainErr.Op,
		Node:    domainErr.NodeID,
		Message: domainErr.Message,
	}
	if domainErr.Err != nil {
		w.Cause = domainErr.Err.Error()
	}
	return w
}

// decode rebuilds the error raised on the server. Causes that are one of the
// shared sentinels come back as that sentinel.
func (w *wireError) decode() *domain.Error {
	e := &domain.Error{
		Kind:    domain.ParseErrorKind(w.Kind),
		Op:      w.Op,
		NodeID:  w.Node,
		Message: w.Message,
	}
	if w.Cause != "" {
		e.Err = sentinel(w.Cause)
	}
	return e
}

var sentinels = []error{
	domain.ErrNotFound,
	domain.ErrInvalidInput,
	domain.ErrClosed,
	domain.ErrTimeout,
}

func sentinel(cause string) error {
	for _, s := range sentinels {
		if s.Error() == cause {
			return s
		}
	}
	return errors.New(cause)
}
