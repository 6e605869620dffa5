package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-voice/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	transitionCounter    = mustInt64Counter("orchestrator.transitions", "Events applied to the turn-taking machine")
	droppedEventsCounter = mustInt64Counter("orchestrator.events.dropped", "Voice activity events dropped because the queue was full")
)

func mustInt64Counter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Error("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}
