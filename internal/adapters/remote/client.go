package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
	"github.com/eleven-am/loom/internal/ports"
	json "github.com/eleven-am/loom/internal/xjson"
)

var _ ports.AsyncWorkflowOps = (*Client)(nil)

// Client is the deferred form of a remote workflow. It has no synchronous
// methods. Each call runs its RPC on its own context bounded by the
// connection timeout, so a caller that stops waiting does not abort it.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// Dial connects to a remote server at target.
func Dial(target string, config domain.TransportConfig, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(unaryClientLoggingInterceptor(logger.With("component", "remote-client"))),
	}
	if config.MaxMessageSizeMB > 0 {
		size := config.MaxMessageSizeMB * 1024 * 1024
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(size), grpc.MaxCallSendMsgSize(size)))
	}
	conn, err := grpc.NewClient(target, append(dialOpts, opts...)...)
	if err != nil {
		return nil, domain.NewTransportError("dial", "failed to create client for "+target, err)
	}
	c := NewClient(conn, config, logger)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection; closing the client leaves conn open.
func NewClient(conn grpc.ClientConnInterface, config domain.TransportConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.ConnectionTimeout
	if timeout <= 0 {
		timeout = domain.DefaultTransportConfig().ConnectionTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With("component", "remote-client"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops waiting for calls still in flight. Operations the server has
// already received keep running there.
func (c *Client) Close() error {
	c.cancel()
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

func invoke[T any](c *Client, op string, payload interface{}) *future.Future[T] {
	return future.Go(func() (T, error) {
		var zero T
		req := request{ID: uuid.NewString(), Op: op}
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return zero, domain.NewStructuralError(op, "failed to encode payload", err)
			}
			req.Payload = raw
		}
		body, err := json.Marshal(req)
		if err != nil {
			return zero, domain.NewStructuralError(op, "failed to encode request", err)
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		out := new(wrapperspb.BytesValue)
		if err := c.conn.Invoke(ctx, invokeMethod, wrapperspb.Bytes(body), out); err != nil {
			return zero, transportError(op, err)
		}

		var resp response
		if err := json.Unmarshal(out.GetValue(), &resp); err != nil {
			return zero, domain.NewTransportError(op, "malformed response", err)
		}
		if resp.Error != nil {
			return zero, resp.Error.decode()
		}

		var result T
		if len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				return zero, domain.NewTransportError(op, "malformed result", err)
			}
		}
		return result, nil
	})
}

func transportError(op string, err error) error {
	switch status.Code(err) {
	case codes.Canceled:
		return domain.NewCancelledError(op, "remote call cancelled", err)
	case codes.DeadlineExceeded:
		return domain.NewTransportError(op, "remote call timed out", errors.Join(domain.ErrTimeout, err))
	default:
		return domain.NewTransportError(op, "remote call failed", err)
	}
}

func (c *Client) RemoveNodesAndConnectionsAsync(nodeIDs []domain.NodeID, connectionIDs []domain.ConnectionID) *future.Future[struct{}] {
	return invoke[struct{}](c, opRemoveNodesAndConnections, removePayload{Nodes: nodeIDs, Connections: connectionIDs})
}

func (c *Client) AddConnectionAsync(source domain.NodeID, sourcePort int, dest domain.NodeID, destPort int) *future.Future[domain.Connection] {
	return invoke[domain.Connection](c, opAddConnection, connectPayload{
		Source:     source,
		SourcePort: sourcePort,
		Dest:       dest,
		DestPort:   destPort,
	})
}

func (c *Client) RemoveConnectionAsync(id domain.ConnectionID) *future.Future[struct{}] {
	return invoke[struct{}](c, opRemoveConnection, id)
}

func (c *Client) ConfigureAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return invoke[struct{}](c, opConfigure, nodesPayload{Nodes: ids})
}

func (c *Client) ResetAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return invoke[struct{}](c, opReset, nodesPayload{Nodes: ids})
}

func (c *Client) ExecuteAsync(ids ...domain.NodeID) *future.Future[struct{}] {
	return invoke[struct{}](c, opExecute, nodesPayload{Nodes: ids})
}

func (c *Client) NodeStatusAsync(id domain.NodeID) *future.Future[domain.NodeStatus] {
	return invoke[domain.NodeStatus](c, opNodeStatus, nodePayload{Node: id})
}
