package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported individually; changes that only take
// effect after a restart are listed by their YAML path in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DJRoleChanged bool
	NewDJRoleID   string

	RateLimitChanged     bool
	NewCommandsPerMinute int

	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DJRoleChanged || d.RateLimitChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Discord.DJRoleID != new.Discord.DJRoleID {
		d.DJRoleChanged = true
		d.NewDJRoleID = new.Discord.DJRoleID
	}
	if old.Discord.CommandsPerMinute != new.Discord.CommandsPerMinute {
		d.RateLimitChanged = true
		d.NewCommandsPerMinute = new.Discord.CommandsPerMinute
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("discord.token", old.Discord.Token != new.Discord.Token)
	restart("discord.guild_id", old.Discord.GuildID != new.Discord.GuildID)
	restart("playback.idle_timeout_seconds", old.Playback.IdleTimeoutSeconds != new.Playback.IdleTimeoutSeconds)
	restart("playback.resolve_timeout_seconds", old.Playback.ResolveTimeoutSeconds != new.Playback.ResolveTimeoutSeconds)
	restart("stream.ffmpeg_path", old.Stream.FFmpegPath != new.Stream.FFmpegPath)
	restart("stream.allowed_hosts", !equalStrings(old.Stream.AllowedHosts, new.Stream.AllowedHosts))
	restart("stream.breaker_max_failures", old.Stream.BreakerMaxFailures != new.Stream.BreakerMaxFailures)
	restart("stream.breaker_reset_seconds", old.Stream.BreakerResetSeconds != new.Stream.BreakerResetSeconds)
	restart("stream.test_file", old.Stream.TestFile != new.Stream.TestFile)

	return d
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
