// Package telemetry defines the logging, metrics and tracing contracts used
// across the agent. Implementations delegate to goa.design/clue/log and
// OpenTelemetry; tests use the no-op variants.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log records. Key-value pairs alternate keys and
	// values; non-string keys are skipped.
	Logger interface {
		// Debug emits a debug-level message.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level message.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warning-level message.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level message.
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers and gauges for agent instrumentation.
	// Tags alternate keys and values.
	Metrics interface {
		// IncCounter increments a counter metric by value.
		IncCounter(name string, value float64, tags ...string)
		// RecordTimer records a duration metric.
		RecordTimer(name string, duration time.Duration, tags ...string)
		// RecordGauge records a gauge metric value.
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans around LLM calls, tool executions and scheduled
	// runs.
	Tracer interface {
		// Start creates a new span and returns the derived context and span.
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		// Span retrieves the current span from the context.
		Span(ctx context.Context) Span
	}

	// Span is the minimal span surface the agent uses.
	Span interface {
		// End finalizes the span.
		End(opts ...trace.SpanEndOption)
		// AddEvent records a span event with alternating key-value attributes.
		AddEvent(name string, attrs ...any)
		// SetStatus sets the span status code and description.
		SetStatus(code codes.Code, description string)
		// RecordError records an error on the span.
		RecordError(err error, opts ...trace.EventOption)
	}
)
