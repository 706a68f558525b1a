// Package observability provides OpenTelemetry integration for distributed
// tracing.
//
// Traces are exported over OTLP HTTP to a local collector or agent.
// Tracing is opt-in: without a configured endpoint the setup is a no-op,
// and an unreachable exporter downgrades to a warning instead of failing
// startup.
//
// Environment variables (optional):
//   - OTLP_ENDPOINT: collector OTLP HTTP endpoint (e.g. localhost:4318)
//   - OTLP_ENVIRONMENT: deployment environment tag (dev, staging, prod)
//   - OTLP_SERVICE: service name shown in the APM UI
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config for OTEL setup.
type Config struct {
	// Endpoint is the collector's OTLP HTTP endpoint. Empty disables
	// tracing entirely.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName is the service name shown in the APM UI.
	ServiceName string
}

// DefaultServiceName identifies this service in traces.
const DefaultServiceName = "ragrelay"

// Setup installs a global TracerProvider exporting to the configured
// collector. It returns a shutdown function that flushes pending spans.
// With no endpoint configured, or an exporter that cannot be created, the
// returned shutdown is a no-op and the process runs untraced.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector doesn't need TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(tp)

	slog.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	// Create a test span to verify the pipeline works
	tracer := tp.Tracer("ragrelay-init")
	_, span := tracer.Start(ctx, "ragrelay.init")
	span.End()

	return tp.Shutdown, nil
}
