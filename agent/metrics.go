package agent

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce   sync.Once
	turnCounter   metric.Int64Counter
	turnDurationS metric.Float64Histogram
	toolCounter   metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		m := otel.Meter("backend-go-assistant/agent")
		var err error
		turnCounter, err = m.Int64Counter(
			"assistant_turn_total",
			metric.WithDescription("Total number of assistant turns by outcome."),
			metric.WithUnit("1"),
		)
		if err != nil {
			turnCounter = nil
		}
		turnDurationS, err = m.Float64Histogram(
			"assistant_turn_duration_seconds",
			metric.WithDescription("Wall time of one assistant turn."),
			metric.WithUnit("s"),
		)
		if err != nil {
			turnDurationS = nil
		}
		toolCounter, err = m.Int64Counter(
			"assistant_tool_calls_total",
			metric.WithDescription("Tool invocations by tool and whether they produced context."),
			metric.WithUnit("1"),
		)
		if err != nil {
			toolCounter = nil
		}
	})
}
