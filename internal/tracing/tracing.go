// Package tracing wraps span instrumentation for the generation and
// retrieval call paths. A span always logs its start and end through
// log/slog, so observability never depends on an exporter being wired
// up; when a global OpenTelemetry TracerProvider has been configured in
// cmd/server, the same span also reports to it. With no provider
// configured, otel's no-op implementation makes every call here a cheap
// no-op beyond the log lines.
package tracing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vaultline/core"

// Span is an in-flight unit of work, closed exactly once with End.
type Span struct {
	otel  trace.Span
	name  string
	start time.Time
}

// Start begins a span named name carrying attrs, returning the context to
// pass to downstream calls alongside the Span to End when the work
// finishes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, otelSpan := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	slog.Debug("tracing: span start", "span", name)
	return ctx, &Span{otel: otelSpan, name: name, start: time.Now()}
}

// End closes the span. A non-nil err is recorded on the span status and
// logged at error level; otherwise the span's elapsed duration is logged
// at debug level. Safe to call from a fire-and-forget goroutine.
func (s *Span) End(err error) {
	elapsed := time.Since(s.start)
	if err != nil {
		s.otel.RecordError(err)
		s.otel.SetStatus(codes.Error, err.Error())
		slog.Error("tracing: span end", "span", s.name, "duration_ms", elapsed.Milliseconds(), "error", err)
	} else {
		s.otel.SetStatus(codes.Ok, "")
		slog.Debug("tracing: span end", "span", s.name, "duration_ms", elapsed.Milliseconds())
	}
	s.otel.End()
}

// StringAttr is a convenience re-export so callers outside this package
// don't need their own otel import just to tag a span.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
