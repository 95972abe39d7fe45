// Package discord provides the Discord bot layer for voxplay. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, throttles users, and checks the DJ role.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxplay/internal/health"
	"github.com/MrWong99/voxplay/pkg/audio"
	discordaudio "github.com/MrWong99/voxplay/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token, without the "Bot " prefix.
	Token string

	// GuildID restricts command registration to one guild. Empty registers
	// global commands.
	GuildID string

	// DJRoleID is the role required to control playback. Empty allows all.
	DJRoleID string

	// CommandsPerMinute is the per-user command budget. Zero disables
	// throttling.
	CommandsPerMinute int
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	perms     *PermissionChecker
	throttle  *Throttle
	guildID   string
	commands  []*discordgo.ApplicationCommand
	ready     health.Flag
	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and registers the
// interaction handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	throttle := NewThrottle(cfg.CommandsPerMinute)
	b := &Bot{
		session:  session,
		platform: discordaudio.New(session),
		router:   NewCommandRouter(throttle),
		perms:    NewPermissionChecker(cfg.DJRoleID),
		throttle: throttle,
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.ready.Set(true)
		slog.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(*discordgo.Session, *discordgo.Resumed) {
		b.ready.Set(true)
		slog.Info("discord gateway resumed")
	})
	session.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) {
		b.ready.Set(false)
		slog.Warn("discord gateway disconnected")
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Voice returns a locator backed by the session's state cache.
func (b *Bot) Voice() VoiceLocator {
	return StateLocator{State: b.session.State}
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Throttle returns the per-user command throttle.
func (b *Bot) Throttle() *Throttle {
	return b.throttle
}

// ReadyChecker reports whether the gateway session is established.
func (b *Bot) ReadyChecker() health.Checker {
	return b.ready.Checker("discord_gateway")
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close unregisters guild commands and disconnects from Discord. Global
// commands are left in place since they take up to an hour to propagate.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.ready.Set(false)
		if b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
