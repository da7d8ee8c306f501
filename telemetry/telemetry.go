// Package telemetry provides the ambient logging, metrics, and tracing
// interfaces threaded through the Router, Orchestration Engine, and Worker
// Runtime. It mirrors the teacher's Clue/OTEL-backed telemetry layering so
// every component logs and traces the same way rather than reaching for
// fmt.Println/log.Printf directly.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger captures structured, leveled logging used throughout the
	// module. With returns a Logger scoped with additional key/value pairs,
	// so a Router.Context can hand handlers a logger already carrying
	// session_id/path without every call site repeating them.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
		With(keyvals ...any) Logger
	}

	// Metrics exposes counter/timer/gauge helpers for runtime instrumentation.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer abstracts span creation so callers remain agnostic of the
	// underlying OpenTelemetry provider.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span represents an in-flight tracing span.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
