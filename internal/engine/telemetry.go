package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rcliao/memory-engine/internal/engine"

// telemetry holds the tracer and counters. Without an SDK installed the
// global providers are no-ops.
type telemetry struct {
	tracer trace.Tracer

	// stored counts entries committed by Store and Update
	stored metric.Int64Counter

	// evicted counts entries removed by Optimize
	evicted metric.Int64Counter

	// results counts search results returned, related expansions included
	results metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.stored, err = meter.Int64Counter(
		"memory.entries.stored",
		metric.WithDescription("Number of entries stored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stored counter: %w", err)
	}
	t.evicted, err = meter.Int64Counter(
		"memory.entries.evicted",
		metric.WithDescription("Number of entries removed by optimization"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create evicted counter: %w", err)
	}
	t.results, err = meter.Int64Counter(
		"memory.search.results",
		metric.WithDescription("Number of search results returned"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create results counter: %w", err)
	}
	return t, nil
}

func (t *telemetry) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}
