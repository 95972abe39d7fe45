// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// voxplay's PCM [audio.AudioFrame] output with Discord's Opus-based voice
// transport.
//
// The platform requires an active *discordgo.Session (owned by the bot layer).
// Each call to [Platform.Connect] joins a voice channel in the given guild and
// returns a [Connection] that encodes and sends playback audio.
package discord

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxplay/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
// One Platform serves every guild the bot is in.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session

	// join performs the actual voice join. Defaults to the session's
	// ChannelVoiceJoin; overridden in tests.
	join func(guildID, channelID string) (*discordgo.VoiceConnection, error)
}

// New creates a new Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	p := &Platform{session: session}
	p.join = func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
		// mute=false (we send audio), deaf=true (we never receive audio).
		return session.ChannelVoiceJoin(guildID, channelID, false, true)
	}
	return p
}

// Connect joins the voice channel channelID in guild roomID and returns an
// active [audio.Connection]. If ctx ends before the handshake completes,
// Connect returns ctx's error and tears down the late connection. Once the
// Connection is returned it lives until [Connection.Disconnect] is called.
func (p *Platform) Connect(ctx context.Context, roomID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := p.join(roomID, channelID)
		ch <- result{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, r.err)
		}
		return newConnection(r.vc, p.session, roomID), nil
	}
}
