// Package config provides the configuration schema, loader, and hot-reload
// watcher for the voxplay playback agent.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultLogLevel              = LogInfo
	DefaultIdleTimeoutSeconds    = 30
	DefaultResolveTimeoutSeconds = 20
	DefaultFFmpegPath            = "ffmpeg"
	DefaultBreakerMaxFailures    = 5
	DefaultBreakerResetSeconds   = 30
)

// Config is the root configuration structure for voxplay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Fields tagged with env can be overridden from the environment; see
// [ApplyEnv].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Playback PlaybackConfig `yaml:"playback"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics
	// (e.g., ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr" env:"VOXPLAY_LISTEN_ADDR"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"VOXPLAY_LOG_LEVEL"`
}

// DiscordConfig holds the bot credentials and command policy.
type DiscordConfig struct {
	// Token is the bot token. Usually supplied via DISCORD_TOKEN.
	Token string `yaml:"token" env:"DISCORD_TOKEN"`

	// GuildID registers slash commands for one guild only (instant
	// propagation, useful during development). Empty registers them
	// globally.
	GuildID string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`

	// DJRoleID, when set, restricts every playback command to members with
	// this role. Hot-reloadable.
	DJRoleID string `yaml:"dj_role_id" env:"VOXPLAY_DJ_ROLE_ID"`

	// CommandsPerMinute throttles each user across all commands. 0 disables
	// the throttle. Hot-reloadable.
	CommandsPerMinute int `yaml:"commands_per_minute" env:"VOXPLAY_COMMANDS_PER_MINUTE"`
}

// PlaybackConfig tunes the per-room session manager. Read once at startup.
type PlaybackConfig struct {
	// IdleTimeoutSeconds is how long a room may sit idle (nothing playing,
	// no loop) before the agent leaves voice. Default: 30.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds" env:"VOXPLAY_IDLE_TIMEOUT_SECONDS"`

	// ResolveTimeoutSeconds bounds a single stream resolution. Default: 20.
	ResolveTimeoutSeconds int `yaml:"resolve_timeout_seconds" env:"VOXPLAY_RESOLVE_TIMEOUT_SECONDS"`
}

// IdleTimeout returns IdleTimeoutSeconds as a duration.
func (p PlaybackConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutSeconds) * time.Second
}

// ResolveTimeout returns ResolveTimeoutSeconds as a duration.
func (p PlaybackConfig) ResolveTimeout() time.Duration {
	return time.Duration(p.ResolveTimeoutSeconds) * time.Second
}

// StreamConfig configures track validation and stream resolution.
type StreamConfig struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg".
	FFmpegPath string `yaml:"ffmpeg_path" env:"VOXPLAY_FFMPEG_PATH"`

	// AllowedHosts lists extra hosts (besides YouTube) whose http(s) URLs
	// are accepted as direct audio links.
	AllowedHosts []string `yaml:"allowed_hosts" env:"VOXPLAY_ALLOWED_HOSTS" envSeparator:","`

	// BreakerMaxFailures is the number of consecutive failures that take a
	// resolution backend out of rotation. Default: 5.
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerResetSeconds is how long a failed backend stays out of
	// rotation. Default: 30.
	BreakerResetSeconds int `yaml:"breaker_reset_seconds"`

	// TestFile is a local audio file played by /testlocal. The command is
	// only registered when this is set.
	TestFile string `yaml:"test_file" env:"VOXPLAY_TEST_FILE"`
}

// BreakerReset returns BreakerResetSeconds as a duration.
func (s StreamConfig) BreakerReset() time.Duration {
	return time.Duration(s.BreakerResetSeconds) * time.Second
}
