package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory TracerProvider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]string {
	out := make(map[attribute.Key]string, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ctx         func() context.Context
		wantGuild   string
		wantSession string
	}{
		{
			name: "empty",
			ctx:  context.Background,
		},
		{
			name:      "guild only",
			ctx:       func() context.Context { return WithGuild(context.Background(), "g1") },
			wantGuild: "g1",
		},
		{
			name: "session keeps guild",
			ctx: func() context.Context {
				return WithSession(WithGuild(context.Background(), "g1"), "s1")
			},
			wantGuild:   "g1",
			wantSession: "s1",
		},
		{
			name: "same guild keeps session",
			ctx: func() context.Context {
				return WithGuild(WithSession(WithGuild(context.Background(), "g1"), "s1"), "g1")
			},
			wantGuild:   "g1",
			wantSession: "s1",
		},
		{
			name: "other guild drops session",
			ctx: func() context.Context {
				return WithGuild(WithSession(WithGuild(context.Background(), "g1"), "s1"), "g2")
			},
			wantGuild: "g2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := tt.ctx()
			if got := GuildID(ctx); got != tt.wantGuild {
				t.Errorf("GuildID = %q, want %q", got, tt.wantGuild)
			}
			if got := SessionID(ctx); got != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", got, tt.wantSession)
			}
		})
	}
}

func TestStartSpan_CarriesRoomAttributes(t *testing.T) {
	exp := useTestTracer(t)

	ctx := WithSession(WithGuild(context.Background(), "guild-1"), "sess-1")
	ctx, span := StartSpan(ctx, "stream.resolve")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "stream.resolve" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "stream.resolve")
	}
	attrs := spanAttrs(spans[0])
	if attrs[GuildKey] != "guild-1" {
		t.Errorf("%s = %q, want %q", GuildKey, attrs[GuildKey], "guild-1")
	}
	if attrs[SessionKey] != "sess-1" {
		t.Errorf("%s = %q, want %q", SessionKey, attrs[SessionKey], "sess-1")
	}
}

func TestStartSpan_NoScopeNoAttributes(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "command.play")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := spanAttrs(spans[0])
	if _, ok := attrs[GuildKey]; ok {
		t.Errorf("unexpected %s attribute", GuildKey)
	}
	if _, ok := attrs[SessionKey]; ok {
		t.Errorf("unexpected %s attribute", SessionKey)
	}
}

func TestLogger_SharesGuildAndTraceAcrossLines(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	ctx, span := StartSpan(WithGuild(context.Background(), "guild-1"), "command.play")
	defer span.End()
	cid := CorrelationID(ctx)

	Logger(ctx).Info("resolving")
	Logger(WithSession(ctx, "sess-1")).Info("joined voice channel")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "guild_id=guild-1") {
			t.Errorf("line missing guild_id: %s", line)
		}
		if !strings.Contains(line, "trace_id="+cid) {
			t.Errorf("line missing trace_id=%s: %s", cid, line)
		}
	}
	if strings.Contains(lines[0], "session_id=") {
		t.Errorf("first line has session_id before a session exists: %s", lines[0])
	}
	if !strings.Contains(lines[1], "session_id=sess-1") {
		t.Errorf("second line missing session_id: %s", lines[1])
	}
}

func TestLogger_Background(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("idle")

	logged := buf.String()
	for _, key := range []string{"trace_id", GuildKey, SessionKey} {
		if strings.Contains(logged, key) {
			t.Errorf("log output should not contain %s, got: %s", key, logged)
		}
	}
}
