package remote

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/eleven-am/loom/internal/adapters/rate_limiter"
)

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

func unaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger.Debug("request started", "method", info.FullMethod)

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			logger.Error("request failed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"code", codeOf(err).String(),
				"error", err,
			)
			return resp, err
		}
		logger.Debug("request completed",
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
		)
		return resp, nil
	}
}

// rateLimitInterceptor admits requests per peer address.
func rateLimitInterceptor(limiter *rate_limiter.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		key := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			key = p.Addr.String()
		}
		if !limiter.Allow(key) {
			return nil, status.Errorf(codes.ResourceExhausted, "%s: %v", info.FullMethod, rate_limiter.ErrRateLimitExceeded)
		}
		return handler(ctx, req)
	}
}

func unaryClientLoggingInterceptor(logger *slog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		duration := time.Since(start)

		if err != nil {
			logger.Error("client request failed",
				"method", method,
				"target", cc.Target(),
				"duration_ms", duration.Milliseconds(),
				"code", codeOf(err).String(),
				"error", err,
			)
			return err
		}
		logger.Debug("client request completed",
			"method", method,
			"target", cc.Target(),
			"duration_ms", duration.Milliseconds(),
		)
		return nil
	}
}
