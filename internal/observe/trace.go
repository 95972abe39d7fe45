package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the voxplay tracer.
const tracerName = "github.com/MrWong99/voxplay"

// Span and log attribute keys for the room a piece of work belongs to.
const (
	GuildKey   = "guild_id"
	SessionKey = "session_id"
)

// Tracer returns the voxplay tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// scope is the room identity carried through a context.
type scope struct {
	guildID   string
	sessionID string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithGuild tags ctx with the guild (room) a command or event belongs to.
// Spans started from ctx and loggers built from it carry the guild ID.
func WithGuild(ctx context.Context, guildID string) context.Context {
	s := scopeFrom(ctx)
	if s.guildID != guildID {
		s = scope{guildID: guildID}
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithSession tags ctx with the voice session ID, keeping its guild.
func WithSession(ctx context.Context, sessionID string) context.Context {
	s := scopeFrom(ctx)
	s.sessionID = sessionID
	return context.WithValue(ctx, scopeKey{}, s)
}

// GuildID returns the guild ctx was tagged with, or "".
func GuildID(ctx context.Context) string { return scopeFrom(ctx).guildID }

// SessionID returns the session ctx was tagged with, or "".
func SessionID(ctx context.Context) string { return scopeFrom(ctx).sessionID }

// StartSpan starts a span named name. The guild and session IDs of ctx, if
// any, are set as span attributes. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := scopeAttrs(scopeFrom(ctx)); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

func scopeAttrs(s scope) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if s.guildID != "" {
		attrs = append(attrs, attribute.String(GuildKey, s.guildID))
	}
	if s.sessionID != "" {
		attrs = append(attrs, attribute.String(SessionKey, s.sessionID))
	}
	return attrs
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the guild_id, session_id and
// trace_id found in ctx. A command's validation, resolve, join and reply
// lines therefore share one guild_id and one trace_id.
func Logger(ctx context.Context) *slog.Logger {
	var args []any
	s := scopeFrom(ctx)
	if s.guildID != "" {
		args = append(args, slog.String(GuildKey, s.guildID))
	}
	if s.sessionID != "" {
		args = append(args, slog.String(SessionKey, s.sessionID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args, slog.String("trace_id", sc.TraceID().String()))
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
