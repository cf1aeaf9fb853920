package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/eleven-am/loom/internal/adapters/rate_limiter"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/netutil"
	"github.com/eleven-am/loom/internal/ports"
	json "github.com/eleven-am/loom/internal/xjson"
)

// Server exposes a WorkflowOps backend to remote callers. Operations run on
// a context owned by the server, so a caller that stops waiting or hits its
// deadline does not abort them; only Stop does.
type Server struct {
	ops     ports.WorkflowOps
	config  domain.TransportConfig
	logger  *slog.Logger
	limiter *rate_limiter.Limiter
	metrics *grpc_prometheus.ServerMetrics
	health  *health.Server

	mu       sync.RWMutex
	server   *grpc.Server
	listener net.Listener
	started  bool
	stopCh   chan struct{}
	opCtx    context.Context
	opCancel context.CancelFunc
}

type ServerOption func(*Server)

// WithMetricsRegisterer registers the per-method gRPC collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ServerOption {
	return func(s *Server) {
		if reg != nil {
			reg.MustRegister(s.metrics)
		}
	}
}

func NewServer(ops ports.WorkflowOps, config domain.TransportConfig, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ops:     ops,
		config:  config,
		logger:  logger.With("component", "remote-server"),
		metrics: grpc_prometheus.NewServerMetrics(),
		health:  health.NewServer(),
	}
	if config.RequestsPerSecond > 0 {
		s.limiter = rate_limiter.New("remote", rate_limiter.Config{
			RequestsPerSecond: config.RequestsPerSecond,
			Burst:             config.Burst,
		}, logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
}

// Start listens on the configured address and serves until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := netutil.Listen(ctx, s.config.Address, s.config.Port)
	if err != nil {
		return err
	}
	if err := s.Serve(ctx, listener); err != nil {
		_ = listener.Close()
		return err
	}
	return nil
}

// Serve serves on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return domain.ErrAlreadyStarted
	}

	unary := []grpc.UnaryServerInterceptor{unaryLoggingInterceptor(s.logger)}
	if s.limiter != nil {
		unary = append(unary, rateLimitInterceptor(s.limiter))
	}
	unary = append(unary, s.metrics.UnaryServerInterceptor())

	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(unary...)),
	}
	if s.config.MaxMessageSizeMB > 0 {
		size := s.config.MaxMessageSizeMB * 1024 * 1024
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(size), grpc.MaxSendMsgSize(size))
	}

	s.server = grpc.NewServer(serverOpts...)
	s.server.RegisterService(&serviceDesc, s)
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.metrics.InitializeMetrics(s.server)

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s.listener = listener
	s.started = true
	s.stopCh = make(chan struct{})
	s.opCtx, s.opCancel = context.WithCancel(context.Background())

	server := s.server
	go func() {
		s.logger.Info("remote server starting", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error("remote server failed", "error", err)
		}
	}()

	stopCh := s.stopCh
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	close(s.stopCh)
	s.opCancel()
	s.health.Shutdown()
	s.logger.Info("stopping remote server")
	s.server.GracefulStop()
	if s.limiter != nil {
		s.limiter.Close()
	}
	s.started = false
	s.logger.Info("remote server stopped")
	return nil
}

type outcome struct {
	result interface{}
	err    error
}

func (s *Server) operationContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.opCtx == nil {
		return context.Background()
	}
	return s.opCtx
}

// Invoke runs one request. If the caller goes away first the operation
// keeps running and its result is dropped.
func (s *Server) Invoke(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req request
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	done := make(chan outcome, 1)
	opCtx := s.operationContext()
	go func() {
		result, err := s.dispatch(opCtx, req)
		done <- outcome{result: result, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		s.logger.Debug("caller stopped waiting, operation continues", "request_id", req.ID, "op", req.Op)
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	result, err := o.result, o.err
	resp := response{ID: req.ID}
	if err != nil {
		resp.Error = encodeError(err)
		s.logger.Debug("operation failed", "request_id", req.ID, "op", req.Op, "kind", resp.Error.Kind, "error", err)
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
		}
		resp.Result = raw
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return wrapperspb.Bytes(out), nil
}

func decodePayload[T any](req request) (T, error) {
	var payload T
	if len(req.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		return payload, domain.NewStructuralError(req.Op, "malformed payload", domain.ErrInvalidInput)
	}
	return payload, nil
}

func (s *Server) dispatch(ctx context.Context, req request) (interface{}, error) {
	switch req.Op {
	case opRemoveNodesAndConnections:
		p, err := decodePayload[removePayload](req)
		if err != nil {
			return nil, err
		}
		return nil, s.ops.RemoveNodesAndConnections(ctx, p.Nodes, p.Connections)
	case opAddConnection:
		p, err := decodePayload[connectPayload](req)
		if err != nil {
			return nil, err
		}
		conn, err := s.ops.AddConnection(ctx, p.Source, p.SourcePort, p.Dest, p.DestPort)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case opRemoveConnection:
		p, err := decodePayload[domain.ConnectionID](req)
		if err != nil {
			return nil, err
		}
		return nil, s.ops.RemoveConnection(ctx, p)
	case opConfigure:
		p, err := decodePayload[nodesPayload](req)
		if err != nil {
			return nil, err
		}
		return nil, s.ops.Configure(ctx, p.Nodes...)
	case opReset:
		p, err := decodePayload[nodesPayload](req)
		if err != nil {
			return nil, err
		}
		return nil, s.ops.Reset(ctx, p.Nodes...)
	case opExecute:
		p, err := decodePayload[nodesPayload](req)
		if err != nil {
			return nil, err
		}
		return nil, s.ops.Execute(ctx, p.Nodes...)
	case opNodeStatus:
		p, err := decodePayload[nodePayload](req)
		if err != nil {
			return nil, err
		}
		st, err := s.ops.NodeStatus(ctx, p.Node)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, domain.NewStructuralError(req.Op, "unknown operation", domain.ErrInvalidInput)
	}
}
