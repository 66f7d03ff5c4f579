package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Timer records the phases of an operation on span. Each call to the returned
// function sets "<prefix>.timings.<label>" to the milliseconds elapsed since
// the previous call, or since Timer was called for the first phase.
func Timer(span trace.Span, prefix string) func(label string) {
	last := time.Now()

	// the start timestamp shows delays before the timer started, e.g. in
	// middleware further out
	span.SetAttributes(attribute.Float64(prefix+".timings.started_at", float64(last.UnixMilli())/1000))

	return func(label string) {
		now := time.Now()
		span.SetAttributes(attribute.Int64(prefix+".timings."+label, now.Sub(last).Milliseconds()))
		last = now
	}
}
