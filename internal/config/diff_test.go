package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voxplay/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{ListenAddr: ":9090", LogLevel: config.LogInfo},
		Discord:  config.DiscordConfig{Token: "t", CommandsPerMinute: 10},
		Playback: config.PlaybackConfig{IdleTimeoutSeconds: 30, ResolveTimeoutSeconds: 20},
		Stream:   config.StreamConfig{FFmpegPath: "ffmpeg", AllowedHosts: []string{"a.example.com"}},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
				}
			},
		},
		{
			name:   "dj role",
			mutate: func(c *config.Config) { c.Discord.DJRoleID = "42" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.DJRoleChanged || d.NewDJRoleID != "42" {
					t.Errorf("dj role diff = %v/%q", d.DJRoleChanged, d.NewDJRoleID)
				}
			},
		},
		{
			name:   "rate limit",
			mutate: func(c *config.Config) { c.Discord.CommandsPerMinute = 0 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.RateLimitChanged || d.NewCommandsPerMinute != 0 {
					t.Errorf("rate limit diff = %v/%d", d.RateLimitChanged, d.NewCommandsPerMinute)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tt.mutate(newCfg)
			d := config.Diff(baseConfig(), newCfg)
			tt.check(t, d)
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	newCfg := baseConfig()
	newCfg.Server.ListenAddr = ":8080"
	newCfg.Playback.IdleTimeoutSeconds = 60
	newCfg.Stream.AllowedHosts = []string{"a.example.com", "b.example.com"}
	newCfg.Stream.TestFile = "/srv/voxplay/test.mp3"

	d := config.Diff(baseConfig(), newCfg)
	want := []string{"server.listen_addr", "playback.idle_timeout_seconds", "stream.allowed_hosts", "stream.test_file"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.DJRoleChanged || d.RateLimitChanged {
		t.Errorf("unexpected hot-reload changes: %+v", d)
	}
	if !d.Changed() {
		t.Error("Changed() = false, want true")
	}
}
