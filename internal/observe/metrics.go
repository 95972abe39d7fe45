// Package observe provides application-wide observability primitives for
// voxplay: OpenTelemetry metrics, tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxplay metrics.
const meterName = "github.com/MrWong99/voxplay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveSessions tracks the number of rooms the agent is present in.
	ActiveSessions metric.Int64UpDownCounter

	// --- Counters ---

	// Commands counts handled slash commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// PlaybackStarts counts resources handed to a player. Use with attribute:
	//   attribute.String("mode", "play"|"loop"|"replay")
	PlaybackStarts metric.Int64Counter

	// SessionEnds counts session teardowns. Use with attribute:
	//   attribute.String("reason", "disconnect"|"idle"|"severed"|"shutdown")
	SessionEnds metric.Int64Counter

	// PlayerErrors counts error signals raised by audio players.
	PlayerErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes of stream
	// backends. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Latency histograms ---

	// ResolveDuration tracks stream resolution latency. Use with attribute:
	//   attribute.String("status", ...)
	ResolveDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time, labelled by
	// method, matched route pattern and response status.
	HTTPRequestDuration metric.Float64Histogram
}

// resolveBuckets defines histogram bucket boundaries (in seconds) for stream
// resolution, which is dominated by yt-dlp start-up and remote extraction.
var resolveBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxplay.active_sessions",
		metric.WithDescription("Number of rooms with a live voice session."),
	); err != nil {
		return nil, err
	}

	if met.Commands, err = m.Int64Counter("voxplay.commands",
		metric.WithDescription("Total slash commands by command and status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("voxplay.playback.starts",
		metric.WithDescription("Total resources started by mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionEnds, err = m.Int64Counter("voxplay.session.ends",
		metric.WithDescription("Total session teardowns by reason."),
	); err != nil {
		return nil, err
	}
	if met.PlayerErrors, err = m.Int64Counter("voxplay.player.errors",
		metric.WithDescription("Total error signals raised by audio players."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voxplay.stream.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes of stream backends."),
	); err != nil {
		return nil, err
	}

	if met.ResolveDuration, err = m.Float64Histogram("voxplay.stream.resolve.duration",
		metric.WithDescription("Latency of stream resolution by status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(resolveBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxplay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records one handled command.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordPlaybackStart records a resource handed to a player.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, mode string) {
	m.PlaybackStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordSessionStart increments the active session gauge.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionEnd decrements the active session gauge and counts the
// teardown reason.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionEnds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPlayerError counts a player error signal.
func (m *Metrics) RecordPlayerError(ctx context.Context) {
	m.PlayerErrors.Add(ctx, 1)
}

// RecordResolve records the latency of one stream resolution.
func (m *Metrics) RecordResolve(ctx context.Context, d time.Duration, status string) {
	m.ResolveDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordBreakerTransition counts a stream backend's breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("state", state),
		),
	)
}
