// Package telemetry wires OpenTelemetry stdout exporters for the CLI.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// metricExportInterval is how often the periodic reader flushes metrics.
const metricExportInterval = 15 * time.Second

// Providers bundles the configured telemetry handles and their shutdown.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup configures stdout trace and metric exporters and returns the
// tracer and meter for the engine. Call Shutdown on exit to flush.
func Setup(ctx context.Context) (*Providers, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(metricExportInterval))),
	)
	otel.SetMeterProvider(mp)

	return &Providers{
		Tracer: tp.Tracer("gameflow"),
		Meter:  mp.Meter("gameflow"),
		tp:     tp,
		mp:     mp,
	}, nil
}

// RegisterRuleCountGauge reports the current registry size through the
// meter. count is polled at each metric export.
func (p *Providers) RegisterRuleCountGauge(count func() int) error {
	gauge, err := p.Meter.Int64ObservableGauge("gameflow.registered_rules",
		metric.WithDescription("Number of rules currently registered"))
	if err != nil {
		return fmt.Errorf("failed to create rule count gauge: %w", err)
	}
	_, err = p.Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(count()))
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register gauge callback: %w", err)
	}
	return nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := p.tp.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := p.mp.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
