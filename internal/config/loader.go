package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays environment
// variables, applies defaults and validates the result. An empty path skips
// the file, so a deployment can be configured from the environment alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
	}
	cfg, err := loadBytes(data)
	if err != nil {
		if path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// loadBytes is the full pipeline shared by [Load] and the [Watcher].
func loadBytes(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. The environment is not consulted. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from the given .env files (default
// ".env") without overriding variables that are already set. Missing files
// are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields of cfg from environment variables named in their
// env struct tags. Unset variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Playback.IdleTimeoutSeconds == 0 {
		cfg.Playback.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if cfg.Playback.ResolveTimeoutSeconds == 0 {
		cfg.Playback.ResolveTimeoutSeconds = DefaultResolveTimeoutSeconds
	}
	if cfg.Stream.FFmpegPath == "" {
		cfg.Stream.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Stream.BreakerMaxFailures == 0 {
		cfg.Stream.BreakerMaxFailures = DefaultBreakerMaxFailures
	}
	if cfg.Stream.BreakerResetSeconds == 0 {
		cfg.Stream.BreakerResetSeconds = DefaultBreakerResetSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if cfg.Discord.CommandsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("discord.commands_per_minute %d must not be negative", cfg.Discord.CommandsPerMinute))
	}

	// Playback
	if cfg.Playback.IdleTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("playback.idle_timeout_seconds %d must be positive", cfg.Playback.IdleTimeoutSeconds))
	}
	if cfg.Playback.ResolveTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("playback.resolve_timeout_seconds %d must be positive", cfg.Playback.ResolveTimeoutSeconds))
	}

	// Stream
	for i, h := range cfg.Stream.AllowedHosts {
		prefix := fmt.Sprintf("stream.allowed_hosts[%d]", i)
		switch {
		case strings.TrimSpace(h) == "":
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
		case strings.ContainsAny(h, "/:"):
			errs = append(errs, fmt.Errorf("%s %q must be a bare host name without scheme, port or path", prefix, h))
		}
	}
	if cfg.Stream.BreakerMaxFailures < 0 {
		errs = append(errs, fmt.Errorf("stream.breaker_max_failures %d must not be negative", cfg.Stream.BreakerMaxFailures))
	}
	if cfg.Stream.BreakerResetSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream.breaker_reset_seconds %d must not be negative", cfg.Stream.BreakerResetSeconds))
	}
	if f := cfg.Stream.TestFile; f != "" {
		if info, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("stream.test_file: %w", err))
		} else if info.IsDir() {
			errs = append(errs, fmt.Errorf("stream.test_file %q is a directory", f))
		}
	}

	return errors.Join(errs...)
}
