package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/config"
)

const tracerName = "github.com/isleoflan/sso-server"

// setupTimeout bounds the initial exporter handshake so a dead collector
// cannot stall startup.
const setupTimeout = 10 * time.Second

// Tracing owns the tracer provider for the process. With no collector
// endpoint configured it degrades to a noop provider, so handoff spans cost
// nothing in environments without tracing.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// Setup installs the global tracer provider and propagators.
func Setup(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Tracing, error) {
	if cfg.TelemetryEndpoint == "" {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		return &Tracing{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	exporter, err := otlptracehttp.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if logger != nil {
		logger.Info("telemetry enabled",
			zap.String("endpoint", cfg.TelemetryEndpoint),
			zap.String("service", cfg.ServiceName),
		)
	}
	return &Tracing{provider: provider}, nil
}

func exporterOptions(cfg config.Config) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.TelemetryEndpoint),
	}
	if cfg.TelemetryInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// Tracer returns the process tracer, noop when tracing is disabled.
func (t *Tracing) Tracer() trace.Tracer {
	if t == nil || t.provider == nil {
		return otel.Tracer(tracerName)
	}
	return t.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
