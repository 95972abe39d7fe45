// Package commands implements the voxplay slash command handlers.
package commands

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxplay/internal/discord"
	"github.com/MrWong99/voxplay/internal/observe"
	"github.com/MrWong99/voxplay/internal/playback"
)

// defaultCommandTimeout bounds a single command, including stream
// resolution and the voice handshake.
const defaultCommandTimeout = 60 * time.Second

// Controller is the playback surface the commands drive.
type Controller interface {
	Validate(track string) error
	Join(ctx context.Context, roomID string, req playback.Requester) error
	Play(ctx context.Context, roomID string, req playback.Requester, track string) (playback.NowPlaying, error)
	Loop(ctx context.Context, roomID string, req playback.Requester, track string) (playback.NowPlaying, error)
	PlayLocal(ctx context.Context, roomID, track string) (playback.NowPlaying, error)
	Stop(ctx context.Context, roomID string) error
	Disconnect(ctx context.Context, roomID string) error
}

// Replies shown to users.
const (
	replyJoined       = "Joined your voice channel"
	replyStopped      = "Playback has been stopped"
	replyDisconnected = "Disconnected"
	replyTestLocal    = "Playing the local test file"

	replyNotInVoice    = "You need to be in a voice channel to use this command."
	replyInvalidTrack  = "That link can't be played. Please provide a valid YouTube or supported audio URL."
	replyNotConnected  = "I'm not connected to a voice channel."
	replyNothing       = "Nothing is playing right now."
	replyResolveFailed = "Couldn't load that track. Please try again later."
	replyJoinFailed    = "Couldn't join your voice channel."
	replyLeaveFailed   = "Something went wrong while leaving the voice channel."
	replySuperseded    = "That request was replaced by a newer command."
	replyShuttingDown  = "I'm shutting down, please try again shortly."
	replyGuildOnly     = "This command only works in a server."
	replyNotDJ         = "You need the DJ role to control playback."
	replyInternal      = "Something went wrong."
)

// PlaybackConfig holds the dependencies of [PlaybackCommands].
type PlaybackConfig struct {
	Controller  Controller
	Voice       discord.VoiceLocator
	Permissions *discord.PermissionChecker

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Timeout bounds each command. Defaults to 60s.
	Timeout time.Duration

	// TestFile enables /testlocal, which plays this file into the room's
	// existing session.
	TestFile string
}

// PlaybackCommands implements /join, /play, /loop, /stop and /disconnect,
// plus /testlocal when a test file is configured.
type PlaybackCommands struct {
	ctrl     Controller
	voice    discord.VoiceLocator
	perms    *discord.PermissionChecker
	metrics  *observe.Metrics
	timeout  time.Duration
	testFile string
}

// NewPlaybackCommands creates the playback command handlers.
func NewPlaybackCommands(cfg PlaybackConfig) *PlaybackCommands {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Permissions == nil {
		cfg.Permissions = discord.NewPermissionChecker("")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	return &PlaybackCommands{
		ctrl:     cfg.Controller,
		voice:    cfg.Voice,
		perms:    cfg.Permissions,
		metrics:  cfg.Metrics,
		timeout:  cfg.Timeout,
		testFile: cfg.TestFile,
	}
}

// Register registers all playback commands with the router.
func (pc *PlaybackCommands) Register(router *discord.CommandRouter) {
	defs := pc.Definitions()
	handlers := map[string]discord.HandlerFunc{
		"join":       pc.handleJoin,
		"play":       pc.handlePlay,
		"loop":       pc.handleLoop,
		"stop":       pc.handleStop,
		"disconnect": pc.handleDisconnect,
		"testlocal":  pc.handleTestLocal,
	}
	for _, def := range defs {
		router.RegisterCommand(def, handlers[def.Name])
	}
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (pc *PlaybackCommands) Definitions() []*discordgo.ApplicationCommand {
	urlOption := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "url",
			Description: "Link to the track",
			Required:    true,
		},
	}
	defs := []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel"},
		{Name: "play", Description: "Play a track, replacing the current one", Options: urlOption},
		{Name: "loop", Description: "Play a track on repeat", Options: urlOption},
		{Name: "stop", Description: "Stop playback but stay in the channel"},
		{Name: "disconnect", Description: "Leave the voice channel"},
	}
	if pc.testFile != "" {
		defs = append(defs, &discordgo.ApplicationCommand{Name: "testlocal", Description: "Play the local test file"})
	}
	return defs
}

func (pc *PlaybackCommands) handleJoin(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	req, ok := pc.precheck(ctx, r, i, "join")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	discord.DeferReply(r, i)
	if err := pc.ctrl.Join(ctx, i.GuildID, req); err != nil {
		pc.fail(ctx, r, i, "join", err, true)
		return
	}
	pc.metrics.RecordCommand(ctx, "join", "ok")
	discord.FollowUp(r, i, replyJoined)
}

func (pc *PlaybackCommands) handlePlay(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	pc.handleStart(ctx, r, i, "play")
}

func (pc *PlaybackCommands) handleLoop(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	pc.handleStart(ctx, r, i, "loop")
}

// handleStart serves /play and /loop. User input is checked before the
// reply is deferred so that those errors stay ephemeral.
func (pc *PlaybackCommands) handleStart(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, name string) {
	req, ok := pc.precheck(ctx, r, i, name)
	if !ok {
		return
	}
	track := stringOption(i, "url")
	if err := pc.ctrl.Validate(track); err != nil {
		pc.fail(ctx, r, i, name, err, false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	discord.DeferReply(r, i)
	start := pc.ctrl.Play
	prefix := "Now playing: "
	if name == "loop" {
		start = pc.ctrl.Loop
		prefix = "Now looping: "
	}
	if _, err := start(ctx, i.GuildID, req, track); err != nil {
		pc.fail(ctx, r, i, name, err, true)
		return
	}
	pc.metrics.RecordCommand(ctx, name, "ok")
	discord.FollowUp(r, i, prefix+track)
}

func (pc *PlaybackCommands) handleStop(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if !pc.authorize(ctx, r, i, "stop") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	if err := pc.ctrl.Stop(ctx, i.GuildID); err != nil {
		pc.fail(ctx, r, i, "stop", err, false)
		return
	}
	pc.metrics.RecordCommand(ctx, "stop", "ok")
	discord.Respond(r, i, replyStopped)
}

func (pc *PlaybackCommands) handleDisconnect(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if !pc.authorize(ctx, r, i, "disconnect") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	if err := pc.ctrl.Disconnect(ctx, i.GuildID); err != nil {
		pc.fail(ctx, r, i, "disconnect", err, false)
		return
	}
	pc.metrics.RecordCommand(ctx, "disconnect", "ok")
	discord.Respond(r, i, replyDisconnected)
}

// handleTestLocal plays the configured test file. The room must already be
// connected; the file is local, so the reply is not deferred.
func (pc *PlaybackCommands) handleTestLocal(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if !pc.authorize(ctx, r, i, "testlocal") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	if _, err := pc.ctrl.PlayLocal(ctx, i.GuildID, pc.testFile); err != nil {
		pc.fail(ctx, r, i, "testlocal", err, false)
		return
	}
	pc.metrics.RecordCommand(ctx, "testlocal", "ok")
	discord.Respond(r, i, replyTestLocal)
}

// authorize checks the guild context and the DJ role.
func (pc *PlaybackCommands) authorize(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, name string) bool {
	if i.GuildID == "" {
		pc.metrics.RecordCommand(ctx, name, "guild_only")
		discord.RespondEphemeral(r, i, replyGuildOnly)
		return false
	}
	if !pc.perms.IsDJ(i) {
		pc.metrics.RecordCommand(ctx, name, "forbidden")
		discord.RespondEphemeral(r, i, replyNotDJ)
		return false
	}
	return true
}

// precheck authorizes the command and looks up the requester's voice
// channel.
func (pc *PlaybackCommands) precheck(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, name string) (playback.Requester, bool) {
	if !pc.authorize(ctx, r, i, name) {
		return playback.Requester{}, false
	}
	req := playback.Requester{UserID: discord.InteractionUserID(i)}
	ch, err := pc.voice.VoiceChannel(i.GuildID, req.UserID)
	if err != nil {
		observe.Logger(ctx).Warn("voice state lookup failed", "user_id", req.UserID, "err", err)
	}
	if ch == "" {
		pc.fail(ctx, r, i, name, playback.ErrNotInVoiceChannel, false)
		return playback.Requester{}, false
	}
	req.ChannelID = ch
	return req, true
}

// fail translates err into a single reply. deferred selects a follow-up
// instead of an initial response.
func (pc *PlaybackCommands) fail(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, name string, err error, deferred bool) {
	reply, status := describe(err)
	pc.metrics.RecordCommand(ctx, name, status)

	log := observe.Logger(ctx)
	if status == "internal" || status == "resolve_failed" || status == "teardown_failed" || status == "join_failed" {
		log.Warn("command failed", "command", name, "status", status, "err", err)
	} else {
		log.Debug("command rejected", "command", name, "status", status, "err", err)
	}

	if deferred {
		discord.FollowUp(r, i, reply)
		return
	}
	discord.RespondEphemeral(r, i, reply)
}

// describe maps a playback error to its user reply and metric status.
func describe(err error) (reply, status string) {
	switch {
	case errors.Is(err, playback.ErrNotInVoiceChannel):
		return replyNotInVoice, "not_in_voice"
	case errors.Is(err, playback.ErrInvalidTrack):
		return replyInvalidTrack, "invalid_track"
	case errors.Is(err, playback.ErrNotConnected):
		return replyNotConnected, "not_connected"
	case errors.Is(err, playback.ErrNothingPlaying):
		return replyNothing, "nothing_playing"
	case errors.Is(err, playback.ErrStreamResolution):
		return replyResolveFailed, "resolve_failed"
	case errors.Is(err, playback.ErrVoiceConnect):
		return replyJoinFailed, "join_failed"
	case errors.Is(err, playback.ErrTeardown):
		return replyLeaveFailed, "teardown_failed"
	case errors.Is(err, playback.ErrSuperseded):
		return replySuperseded, "superseded"
	case errors.Is(err, playback.ErrClosed):
		return replyShuttingDown, "closed"
	default:
		return replyInternal, "internal"
	}
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
