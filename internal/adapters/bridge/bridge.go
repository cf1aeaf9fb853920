package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/helpers/future"
	"github.com/eleven-am/loom/internal/ports"
)

const tracerName = "github.com/eleven-am/loom/bridge"

// Bridge dispatches workflow operations to capability-tagged targets and
// gives both paths the same result and error taxonomy.
type Bridge struct {
	config   domain.BridgeConfig
	logger   *slog.Logger
	notifier ports.Notifier
	tracer   trace.Tracer
	metrics  *Metrics

	mu       sync.Mutex
	monitors map[ports.ProgressMonitor]string
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithNotifier(notifier ports.Notifier) Option {
	return func(b *Bridge) { b.notifier = notifier }
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(b *Bridge) {
		if provider != nil {
			b.tracer = provider.Tracer(tracerName)
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(b *Bridge) { b.metrics = metrics }
}

func New(config domain.BridgeConfig, opts ...Option) *Bridge {
	b := &Bridge{
		config:   config,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		monitors: make(map[ports.ProgressMonitor]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.config.ProgressInterval <= 0 {
		b.config.ProgressInterval = domain.DefaultBridgeConfig().ProgressInterval
	}
	if b.config.ProgressTotal <= 0 {
		b.config.ProgressTotal = domain.DefaultBridgeConfig().ProgressTotal
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// Call runs op against target. A target that supports deferred execution is
// always served through the async path; the caller then blocks until the
// result arrives, ctx ends or the configured wait timeout passes. Ending the
// wait does not stop the operation.
func Call[T any](ctx context.Context, b *Bridge, target Target, op Operation[T], monitor ports.ProgressMonitor) (T, error) {
	callID := uuid.NewString()
	path := CapabilitySync
	if target.Supports(CapabilityAsync) {
		path = CapabilityAsync
	}

	ctx, span := b.tracer.Start(ctx, "bridge."+op.Name, trace.WithAttributes(
		attribute.String("bridge.call_id", callID),
		attribute.String("bridge.target", target.Name()),
		attribute.String("bridge.path", path.String()),
		attribute.String("bridge.operation", op.Name),
	))
	defer span.End()

	start := time.Now()
	var (
		result T
		err    error
	)
	if path == CapabilityAsync {
		result, err = callAsync(ctx, b, target, op, monitor, callID)
	} else {
		result, err = callSync(ctx, b, target, op)
	}
	b.metrics.observe(op.Name, path, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("bridge.error_kind", domain.KindOf(err).String()))
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// CallVoid is Call for operations without a result.
func CallVoid(ctx context.Context, b *Bridge, target Target, op Operation[Void], monitor ports.ProgressMonitor) error {
	_, err := Call(ctx, b, target, op, monitor)
	return err
}

func callSync[T any](ctx context.Context, b *Bridge, target Target, op Operation[T]) (T, error) {
	var zero T
	ops, err := target.Sync()
	if err != nil {
		return zero, err
	}
	if op.Sync == nil {
		return zero, domain.NewUseAsyncError(op.Name)
	}
	result, err := op.Sync(ctx, ops)
	if err != nil {
		return zero, b.translate(op.Name, err, domain.KindExecution)
	}
	return result, nil
}

func callAsync[T any](ctx context.Context, b *Bridge, target Target, op Operation[T], monitor ports.ProgressMonitor, callID string) (T, error) {
	var zero T
	ops, _ := target.Async()
	if op.Async == nil {
		return zero, domain.NewInvalidStateError(op.Name, "operation has no deferred form")
	}

	release, err := b.claim(monitor, callID)
	if err != nil {
		return zero, err
	}
	defer release()

	f := op.Async(ops)
	result, err := wait(ctx, b, op.Name, f, monitor)
	if err == nil {
		return result, nil
	}

	err = b.translate(op.Name, err, domain.KindTransport)
	if domain.KindOf(err) == domain.KindCancelled {
		b.logger.Info("stopped waiting for deferred operation",
			"call_id", callID,
			"target", target.Name(),
			"operation", op.Name,
			"reason", err)
	} else {
		b.logger.Error("deferred operation failed",
			"call_id", callID,
			"target", target.Name(),
			"operation", op.Name,
			"kind", domain.KindOf(err).String(),
			"error", err)
		if b.notifier != nil {
			b.notifier.Warn(fmt.Sprintf("%s failed", op.Name), err.Error())
		}
	}
	return zero, err
}

// wait blocks on f while reporting progress. Interrupting the wait yields
// a Cancelled error and leaves f running.
func wait[T any](ctx context.Context, b *Bridge, name string, f *future.Future[T], monitor ports.ProgressMonitor) (T, error) {
	var zero T
	if b.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.WaitTimeout)
		defer cancel()
	}

	if monitor != nil {
		monitor.Begin(name, b.config.ProgressTotal)
		defer monitor.Done()
	}

	ticker := time.NewTicker(b.config.ProgressInterval)
	defer ticker.Stop()

	worked := 0
	for {
		select {
		case <-f.Done():
			return f.Get()
		case <-ticker.C:
			if monitor != nil && worked < b.config.ProgressTotal-1 {
				worked++
				monitor.Worked(1)
			}
		case <-ctx.Done():
			select {
			case <-f.Done():
				return f.Get()
			default:
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, domain.NewCancelledError(name, "stopped waiting", domain.ErrTimeout)
			}
			return zero, domain.NewCancelledError(name, "stopped waiting", ctx.Err())
		}
	}
}

// claim associates monitor with one outstanding wait.
func (b *Bridge) claim(monitor ports.ProgressMonitor, callID string) (func(), error) {
	if monitor == nil {
		return func() {}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if owner, busy := b.monitors[monitor]; busy {
		return nil, domain.NewInvalidStateError("bridge", fmt.Sprintf("progress monitor already used by call %s", owner))
	}
	b.monitors[monitor] = callID
	return func() {
		b.mu.Lock()
		delete(b.monitors, monitor)
		b.mu.Unlock()
	}, nil
}

// translate keeps typed errors as they are and classifies anything else.
func (b *Bridge) translate(op string, err error, fallback domain.ErrorKind) error {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewCancelledError(op, "operation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return domain.NewCancelledError(op, "operation timed out", domain.ErrTimeout)
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewNotFoundError(op, err.Error())
	}
	if fallback == domain.KindTransport {
		return domain.NewTransportError(op, "deferred operation failed", err)
	}
	return domain.NewExecutionError(op, "operation failed", err)
}
