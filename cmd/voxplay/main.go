// Command voxplay is the entry point for the voxplay Discord playback agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxplay/internal/app"
	"github.com/MrWong99/voxplay/internal/config"
	discordbot "github.com/MrWong99/voxplay/internal/discord"
	"github.com/MrWong99/voxplay/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file (empty: environment only)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the configuration")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "voxplay: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxplay: config file %q not found, copy configs/example.yaml or pass -config \"\"\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxplay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voxplay starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:             cfg.Discord.Token,
		GuildID:           cfg.Discord.GuildID,
		DJRoleID:          cfg.Discord.DJRoleID,
		CommandsPerMinute: cfg.Discord.CommandsPerMinute,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	application, err := app.New(cfg, bot,
		app.WithLevelVar(level),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = bot.Close()
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("voxplay ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}
