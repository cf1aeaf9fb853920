package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/eleven-am/loom/internal/domain"
)

// Provider owns the process tracer provider. When tracing is disabled it
// hands out no-op tracers.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	noop   trace.TracerProvider
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	processors []sdktrace.SpanProcessor
	global     bool
}

// WithSpanProcessor adds a processor next to (or instead of) the OTLP
// exporter. A provider with processors does not need an endpoint.
func WithSpanProcessor(processor sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, processor) }
}

// AsGlobal installs the provider and the W3C propagator process-wide.
func AsGlobal() Option {
	return func(o *options) { o.global = true }
}

func Setup(ctx context.Context, config domain.TracingConfig, logger *slog.Logger, opts ...Option) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tracing")

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !config.Enabled {
		logger.Debug("tracing disabled")
		return &Provider{noop: noop.NewTracerProvider(), logger: logger}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(config.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing resource: %w", err)
	}

	sdkOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))),
	}
	if config.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		sdkOpts = append(sdkOpts, sdktrace.WithBatcher(exporter))
	}
	for _, p := range o.processors {
		sdkOpts = append(sdkOpts, sdktrace.WithSpanProcessor(p))
	}

	tp := sdktrace.NewTracerProvider(sdkOpts...)
	if o.global {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	logger.Info("tracing enabled",
		"service_name", config.ServiceName,
		"endpoint", config.Endpoint,
		"sample_ratio", config.SampleRatio)
	return &Provider{sdk: tp, logger: logger}, nil
}

func (p *Provider) Enabled() bool { return p.sdk != nil }

func (p *Provider) TracerProvider() trace.TracerProvider {
	if p.sdk != nil {
		return p.sdk
	}
	return p.noop
}

func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.ForceFlush(ctx)
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	p.logger.Info("shutting down tracing provider")
	return p.sdk.Shutdown(ctx)
}
