package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxplay/internal/observe"
)

// HandlerFunc is the signature for slash command handlers. ctx carries the
// command's trace span.
type HandlerFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers.
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]commandEntry // command name → entry
	throttle *Throttle
}

// NewCommandRouter creates an empty router. A nil throttle disables rate
// limiting.
func NewCommandRouter(throttle *Throttle) *CommandRouter {
	return &CommandRouter{
		commands: make(map[string]commandEntry),
		throttle: throttle,
	}
}

// RegisterCommand registers a handler for a slash command. The cmd
// definition is used when registering commands with Discord.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// ApplicationCommands returns the command definitions for registration with
// the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, entry := range r.commands {
		cmds = append(cmds, entry.command)
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(resp Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
		return
	}

	name := i.ApplicationCommandData().Name
	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "command", name)
		RespondEphemeral(resp, i, "Unknown command.")
		return
	}

	userID := InteractionUserID(i)
	if r.throttle != nil && !r.throttle.Allow(userID) {
		slog.Info("discord: command throttled", "command", name, "user_id", userID, "guild_id", i.GuildID)
		RespondEphemeral(resp, i, "You're sending commands too quickly. Please wait a moment.")
		return
	}

	ctx, span := observe.StartSpan(observe.WithGuild(context.Background(), i.GuildID), "command."+name)
	defer span.End()
	span.SetAttributes(observe.Attr("user_id", userID))
	entry.handler(ctx, resp, i)
}
