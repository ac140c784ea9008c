package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderCfg describes the telemetry identity and export targets.
type ProviderCfg struct {
	// ServiceName reported in telemetry resources. Defaults to "vani".
	ServiceName string

	// ServiceVersion reported in telemetry resources.
	ServiceVersion string

	// TraceExporter receives finished spans. Left nil, spans stay local,
	// which is what tests and metric-only deployments want. Production
	// wiring would hand an OTLP exporter in here.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry owns the SDK providers installed as the process-global OTel
// providers. Metrics flow through a Prometheus reader so the /metrics
// endpoint can be scraped without an external collector.
type Telemetry struct {
	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// InitProvider wires up the OTel SDK, registers the resulting meter and
// tracer providers globally, and returns their shutdown hook. Call the hook
// in a defer from main so exporters flush on exit.
func InitProvider(ctx context.Context, cfg ProviderCfg) (func(context.Context) error, error) {
	tele, err := newTelemetry(cfg)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(tele.meters)
	otel.SetTracerProvider(tele.traces)
	return tele.shutdown, nil
}

func newTelemetry(cfg ProviderCfg) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vani"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reader, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}

	return &Telemetry{
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
		traces: sdktrace.NewTracerProvider(traceOpts...),
	}, nil
}

func (t *Telemetry) shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.traces.Shutdown(ctx))
}
