package planner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	fallbackCounter metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		m := otel.Meter("backend-go-assistant/planner")
		var err error
		fallbackCounter, err = m.Int64Counter(
			"assistant_planner_fallback_total",
			metric.WithDescription("Count of planner decisions that fell back to a safer planner."),
			metric.WithUnit("1"),
		)
		if err != nil {
			fallbackCounter = nil
		}
	})
}

func recordFallback(ctx context.Context, reason string) {
	initMetrics()
	if fallbackCounter != nil {
		fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
