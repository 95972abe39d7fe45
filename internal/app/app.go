// Package app wires the voxplay subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the stream service, the
// playback controller and the slash commands on top of a connected Discord
// gateway, Run serves the gateway and the HTTP endpoints, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithProvider,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxplay/internal/config"
	"github.com/MrWong99/voxplay/internal/discord"
	"github.com/MrWong99/voxplay/internal/discord/commands"
	"github.com/MrWong99/voxplay/internal/health"
	"github.com/MrWong99/voxplay/internal/observe"
	"github.com/MrWong99/voxplay/internal/playback"
	"github.com/MrWong99/voxplay/internal/resilience"
	"github.com/MrWong99/voxplay/internal/stream"
	"github.com/MrWong99/voxplay/pkg/audio"
)

// ErrNoBackends is reported by the stream readiness check while every
// resolution backend has an open circuit breaker.
var ErrNoBackends = errors.New("all stream backends unavailable")

// Gateway is the Discord side of the application. *discord.Bot implements it.
type Gateway interface {
	Platform() audio.Platform
	Voice() discord.VoiceLocator
	Router() *discord.CommandRouter
	Permissions() *discord.PermissionChecker
	Throttle() *discord.Throttle
	ReadyChecker() health.Checker
	Run(ctx context.Context) error
	Close() error
}

var _ Gateway = (*discord.Bot)(nil)

// backendStater is implemented by providers that guard their backends with
// circuit breakers, such as *stream.Service.
type backendStater interface {
	BackendStates() map[string]resilience.State
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	gateway  Gateway
	provider stream.Provider
	metrics  *observe.Metrics
	level    *slog.LevelVar
	scrape   http.Handler

	controller *playback.Controller
	health     *health.Handler
	handler    http.Handler
	server     *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProvider injects a stream provider instead of building a
// [stream.Service] from config.
func WithProvider(p stream.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithMetrics injects the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler behind GET /metrics. Default: the
// Prometheus default registry via [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets hot reload adjust the log level of the handler that
// owns lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App by wiring all subsystems together. The gateway must
// already be connected; main.go creates it from cfg.Discord.
func New(cfg *config.Config, gw Gateway, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if gw == nil {
		return nil, errors.New("app: gateway is required")
	}

	a := &App{cfg: cfg, gateway: gw}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}

	// ── 1. Stream service ────────────────────────────────────────────────
	if a.provider == nil {
		a.provider = stream.New(stream.Config{
			FFmpegPath:         cfg.Stream.FFmpegPath,
			AllowedHosts:       cfg.Stream.AllowedHosts,
			BreakerMaxFailures: cfg.Stream.BreakerMaxFailures,
			BreakerReset:       cfg.Stream.BreakerReset(),
			OnBreakerChange:    a.onBreakerChange,
			TestFile:           cfg.Stream.TestFile,
		})
	}

	// ── 2. Playback controller ───────────────────────────────────────────
	a.controller = playback.New(playback.Config{
		Platform:       gw.Platform(),
		Provider:       a.provider,
		IdleTimeout:    cfg.Playback.IdleTimeout(),
		ResolveTimeout: cfg.Playback.ResolveTimeout(),
		Metrics:        a.metrics,
	})

	// ── 3. Slash commands ────────────────────────────────────────────────
	commands.NewPlaybackCommands(commands.PlaybackConfig{
		Controller:  a.controller,
		Voice:       gw.Voice(),
		Permissions: gw.Permissions(),
		Metrics:     a.metrics,
		TestFile:    cfg.Stream.TestFile,
	}).Register(gw.Router())

	// ── 4. HTTP endpoints ────────────────────────────────────────────────
	checkers := []health.Checker{gw.ReadyChecker()}
	if bs, ok := a.provider.(backendStater); ok {
		checkers = append(checkers, streamChecker(bs))
	}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	a.handler = observe.Middleware(a.metrics)(mux)

	if cfg.Server.ListenAddr != "" {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// Controller returns the playback controller.
func (a *App) Controller() *playback.Controller { return a.controller }

// Handler returns the HTTP handler serving health and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Run registers the slash commands, serves HTTP if configured, and blocks
// until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.gateway.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Shutdown leaves every voice channel and disconnects from Discord. The
// HTTP server stops when the context passed to Run is cancelled. Shutdown is
// safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.controller.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close playback: %w", err))
		}
		if err := a.gateway.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// ApplyConfig applies the hot-reloadable parts of a config change. It is
// the callback passed to [config.NewWatcher].
func (a *App) ApplyConfig(d config.ConfigDiff, _ *config.Config) {
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DJRoleChanged {
		a.gateway.Permissions().SetRole(d.NewDJRoleID)
		slog.Info("dj role changed", "role_id", d.NewDJRoleID)
	}
	if d.RateLimitChanged {
		a.gateway.Throttle().SetLimit(d.NewCommandsPerMinute)
		slog.Info("command rate limit changed", "per_minute", d.NewCommandsPerMinute)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "fields", d.RestartRequired)
	}
}

func (a *App) onBreakerChange(backend string, from, to resilience.State) {
	a.metrics.RecordBreakerTransition(context.Background(), backend, to.String())
	if to == resilience.StateOpen {
		slog.Warn("stream backend unavailable", "backend", backend, "from", from.String())
		return
	}
	slog.Info("stream backend state changed", "backend", backend, "from", from.String(), "to", to.String())
}

// streamChecker fails only when no backend can take a request.
func streamChecker(bs backendStater) health.Checker {
	return health.Checker{
		Name: "stream_backends",
		Check: func(context.Context) error {
			for _, st := range bs.BackendStates() {
				if st != resilience.StateOpen {
					return nil
				}
			}
			return ErrNoBackends
		},
	}
}
