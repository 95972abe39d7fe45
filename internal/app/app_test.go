package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voxplay/internal/app"
	"github.com/MrWong99/voxplay/internal/config"
	"github.com/MrWong99/voxplay/internal/discord"
	"github.com/MrWong99/voxplay/internal/discord/mock"
	"github.com/MrWong99/voxplay/internal/health"
	"github.com/MrWong99/voxplay/internal/observe"
	"github.com/MrWong99/voxplay/internal/stream"
	streammock "github.com/MrWong99/voxplay/internal/stream/mock"
	"github.com/MrWong99/voxplay/pkg/audio"
	audiomock "github.com/MrWong99/voxplay/pkg/audio/mock"
)

const testTrack = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type voiceMap map[string]string

func (v voiceMap) VoiceChannel(_, userID string) (string, error) { return v[userID], nil }

// fakeGateway is an in-memory [app.Gateway].
type fakeGateway struct {
	platform *audiomock.Platform
	router   *discord.CommandRouter
	perms    *discord.PermissionChecker
	throttle *discord.Throttle
	ready    health.Flag
	voice    voiceMap

	runs   atomic.Int32
	closes atomic.Int32
}

func newFakeGateway() *fakeGateway {
	throttle := discord.NewThrottle(0)
	return &fakeGateway{
		platform: &audiomock.Platform{
			ConnectFunc: func(context.Context, string, string) (audio.Connection, error) {
				return &audiomock.Connection{}, nil
			},
		},
		router:   discord.NewCommandRouter(throttle),
		perms:    discord.NewPermissionChecker(""),
		throttle: throttle,
		voice:    voiceMap{"user-1": "voice-1"},
	}
}

func (g *fakeGateway) Platform() audio.Platform { return g.platform }
func (g *fakeGateway) Voice() discord.VoiceLocator { return g.voice }
func (g *fakeGateway) Router() *discord.CommandRouter { return g.router }
func (g *fakeGateway) Permissions() *discord.PermissionChecker { return g.perms }
func (g *fakeGateway) Throttle() *discord.Throttle { return g.throttle }
func (g *fakeGateway) ReadyChecker() health.Checker { return g.ready.Checker("discord_gateway") }
func (g *fakeGateway) Close() error {
	g.closes.Add(1)
	return nil
}

func (g *fakeGateway) Run(ctx context.Context) error {
	g.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Discord: config.DiscordConfig{Token: "test-token"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, gw *fakeGateway, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithProvider(&streammock.Provider{}),
		app.WithMetrics(testMetrics(t)),
	}, opts...)
	a, err := app.New(testConfig(), gw, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func get(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := app.New(nil, newFakeGateway()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := app.New(testConfig(), nil); err == nil {
		t.Error("expected error for nil gateway")
	}
}

func TestNew_RegistersCommands(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	newTestApp(t, gw)

	var names []string
	for _, cmd := range gw.router.ApplicationCommands() {
		names = append(names, cmd.Name)
	}
	sort.Strings(names)

	want := []string{"disconnect", "join", "loop", "play", "stop"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestNew_RegistersTestLocalWhenConfigured(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Stream.TestFile = "/srv/voxplay/test.mp3"
	gw := newFakeGateway()
	a, err := app.New(cfg, gw, app.WithProvider(&streammock.Provider{}), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	var found bool
	for _, cmd := range gw.router.ApplicationCommands() {
		if cmd.Name == "testlocal" {
			found = true
		}
	}
	if !found {
		t.Error("testlocal not registered with stream.test_file set")
	}
}

func TestApp_HTTPEndpoints(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	a := newTestApp(t, gw)
	h := a.Handler()

	if code := get(t, h, "/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code := get(t, h, "/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before gateway ready = %d, want 503", code)
	}
	gw.ready.Set(true)
	if code := get(t, h, "/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after gateway ready = %d, want 200", code)
	}
	if code := get(t, h, "/metrics"); code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", code)
	}
}

func TestApp_MetricsHandlerOption(t *testing.T) {
	t.Parallel()

	var scraped int
	scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		scraped++
		w.WriteHeader(http.StatusTeapot)
	})
	a := newTestApp(t, newFakeGateway(), app.WithMetricsHandler(scrape))

	if code := get(t, a.Handler(), "/metrics"); code != http.StatusTeapot {
		t.Errorf("/metrics = %d, want the injected handler's 418", code)
	}
	if scraped != 1 {
		t.Errorf("injected handler served %d scrapes, want 1", scraped)
	}
}

type downResolver struct{}

func (downResolver) Resolve(context.Context, string) (*stream.Resource, error) {
	return nil, errors.New("backend down")
}

func TestApp_ReadyzFailsWhenAllBackendsOpen(t *testing.T) {
	t.Parallel()

	svc := stream.New(stream.Config{BreakerMaxFailures: 1, BreakerReset: time.Hour},
		stream.Backend{Name: "only", Resolver: downResolver{}},
	)
	gw := newFakeGateway()
	gw.ready.Set(true)
	a := newTestApp(t, gw, app.WithProvider(svc))

	if code := get(t, a.Handler(), "/readyz"); code != http.StatusOK {
		t.Fatalf("/readyz with closed breaker = %d, want 200", code)
	}
	if _, err := svc.Resolve(context.Background(), testTrack); err == nil {
		t.Fatal("expected resolve failure")
	}
	if code := get(t, a.Handler(), "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz with open breaker = %d, want 503", code)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	var lv slog.LevelVar
	a := newTestApp(t, gw, app.WithLevelVar(&lv))

	a.ApplyConfig(config.ConfigDiff{
		LogLevelChanged:      true,
		NewLogLevel:          config.LogDebug,
		DJRoleChanged:        true,
		NewDJRoleID:          "dj",
		RateLimitChanged:     true,
		NewCommandsPerMinute: 3,
		RestartRequired:      []string{"discord.token"},
	}, testConfig())

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	if gw.perms.Role() != "dj" {
		t.Errorf("dj role = %q, want dj", gw.perms.Role())
	}
	if gw.throttle.Limit() != 3 {
		t.Errorf("limit = %d, want 3", gw.throttle.Limit())
	}
}

func TestApp_PlayCommandEndToEnd(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	a := newTestApp(t, gw)

	resp := &mock.InteractionResponder{}
	gw.router.Handle(resp, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "guild-1",
			Member:  &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "play",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "url", Type: discordgo.ApplicationCommandOptionString, Value: testTrack},
				},
			},
		},
	})

	if fu := resp.LastFollowUp(); fu == nil || fu.Content != "Now playing: "+testTrack {
		t.Fatalf("follow-up = %+v, want now playing", fu)
	}
	if calls := gw.platform.Calls(); len(calls) != 1 || calls[0].RoomID != "guild-1" || calls[0].ChannelID != "voice-1" {
		t.Fatalf("connect calls = %+v", calls)
	}
	if n := a.Controller().Sessions(); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := a.Controller().Sessions(); n != 0 {
		t.Errorf("sessions after shutdown = %d, want 0", n)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := app.New(cfg, gw, app.WithProvider(&streammock.Provider{}), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for gw.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if got := gw.closes.Load(); got != 1 {
		t.Errorf("gateway closed %d times, want 1", got)
	}
}
