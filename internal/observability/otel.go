// Package observability sets up OpenTelemetry tracing for one deploylog run.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	serviceName = "deploylog"
)

// Options selects the exporter. Writer receives stdout-exporter output and
// defaults to os.Stderr so traces never mix with the changelog.
type Options struct {
	Exporter       string
	Endpoint       string
	SampleRatio    float64
	ServiceVersion string
	RunID          string
	Writer         io.Writer
}

// Telemetry owns the tracer provider. The zero value and a nil pointer are
// both valid and trace nothing.
type Telemetry struct {
	provider *sdktrace.TracerProvider
}

// Setup builds a tracer provider for opts.Exporter and installs it as the
// global provider. ExporterNone (or "") returns a Telemetry that hands out
// no-op tracers.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	exporter, err := buildExporter(ctx, opts)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", strings.TrimSpace(opts.ServiceVersion)),
		attribute.String("deploylog.run_id", opts.RunID),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(opts.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Telemetry{provider: tp}, nil
}

func buildExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Exporter)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		var httpOpts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			if strings.Contains(endpoint, "://") {
				httpOpts = append(httpOpts, otlptracehttp.WithEndpointURL(endpoint))
			} else {
				httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
			}
		}
		exp, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", opts.Exporter)
	}
}

// Tracer returns a named tracer, or a no-op tracer when tracing is off.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	if t == nil || t.provider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return t.provider.Tracer(name)
}

// Enabled reports whether spans are exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer shutdown: %w", err)
	}
	return nil
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
