// Package telemetry provides a zero-configuration OpenTelemetry bootstrap
// exposing exactly the metric and trace instruments the engine needs.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
)

// Telemetry holds the engine's tracer, meter, and the §6.6 instruments.
type Telemetry struct {
	TraceProvider *sdktrace.TracerProvider
	Tracer        trace.Tracer
	Meter         metric.Meter

	Instruments Instruments
}

// New bootstraps tracing and metrics from cfg. When OTEL is disabled via
// config, every instrument is a harmless no-op, the same degraded-mode
// posture the teacher's auto-OTEL bootstrap takes.
func New(cfg *config.TelemetryConfig) (*Telemetry, error) {
	if cfg.Disabled {
		tracer := otel.Tracer("noop")
		meter := otel.Meter("noop")
		instruments, err := buildInstruments(meter)
		if err != nil {
			return nil, err
		}
		return &Telemetry{Tracer: tracer, Meter: meter, Instruments: instruments}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("etl.engine", "narrative"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceProvider, err := setupTraceProvider(res, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: setup trace provider: %w", err)
	}

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	meterProvider := otel.GetMeterProvider()
	meter := meterProvider.Meter("etl-narrative-engine")

	instruments, err := buildInstruments(meter)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		TraceProvider: traceProvider,
		Tracer:        traceProvider.Tracer("etl-narrative-engine"),
		Meter:         meter,
		Instruments:   instruments,
	}, nil
}

func setupTraceProvider(res *resource.Resource, cfg *config.TelemetryConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	if cfg.OTLPEndpoint == "" {
		if os.Getenv("ETL_TRACE_STDOUT") == "true" {
			exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, err
			}
			return sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
			), nil
		}
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// StartMessageSpan opens a span for one message's full handling, the same
// span-per-operation granularity the teacher uses for capability execution.
func (t *Telemetry) StartMessageSpan(ctx context.Context, recordType string) (context.Context, trace.Span) {
	ctx, span := t.Tracer.Start(ctx, "etl.process_message")
	span.SetAttributes(attribute.String("record_type", recordType))
	return ctx, span
}

// Shutdown flushes and closes the trace provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.TraceProvider != nil {
		return t.TraceProvider.Shutdown(ctx)
	}
	return nil
}
