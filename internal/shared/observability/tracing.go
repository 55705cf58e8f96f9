package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	DefaultOTLPEndpoint = "localhost:4317"
	serviceName         = "validatetest"
)

// Tracer is the process-wide tracer. It is a no-op until NewTracerProvider
// installs an exporting provider.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(serviceName)

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	SampleRate   float64
	// Writer receives stdout-exporter spans; nil means os.Stdout.
	Writer io.Writer
}

// TracerProvider owns the SDK provider behind Tracer.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider configures Tracer for cfg. The "none" exporter keeps the
// no-op tracer.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case ExporterNone, "":
		return &TracerProvider{}, nil
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	case ExporterOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	Tracer = provider.Tracer(serviceName)
	return &TracerProvider{provider: provider}, nil
}

// Enabled reports whether spans are exported.
func (p *TracerProvider) Enabled() bool { return p != nil && p.provider != nil }

// Shutdown flushes pending spans and restores the no-op tracer.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	Tracer = noop.NewTracerProvider().Tracer(serviceName)
	return p.provider.Shutdown(ctx)
}
