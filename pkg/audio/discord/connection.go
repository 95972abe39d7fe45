package discord

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/voxplay/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// outputChannelBuffer is kept small: frames queued here still play after the
// player switched resources, so every buffered frame is audible latency.
const outputChannelBuffer = 4

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Outgoing PCM frames are encoded to Opus and
// handed to discordgo's sender, which paces them at the 20 ms frame rate.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	guildID string
	selfID  string

	output chan audio.AudioFrame

	severedMu sync.Mutex
	severedCb func()
	severed   bool

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the send loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) *Connection {
	c := &Connection{
		vc:           vc,
		guildID:      guildID,
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	if session.State != nil && session.State.User != nil {
		c.selfID = session.State.User.ID
	}

	// Watch our own voice state so that kicks and channel deletions surface
	// as OnDisconnect.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	go c.sendLoop()
	return c
}

// OutputStream returns the write-only channel for playback audio. Frames
// must be 48 kHz stereo; anything written here is encoded to Opus and sent
// to Discord.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// OnDisconnect registers cb to be called once if the connection is severed
// from outside (the bot is kicked, or its channel is deleted). It is not
// called for [Connection.Disconnect]. Only one callback may be registered;
// subsequent calls replace the previous one.
func (c *Connection) OnDisconnect(cb func()) {
	c.severedMu.Lock()
	defer c.severedMu.Unlock()
	c.severedCb = cb
}

// Disconnect cleanly tears down the voice connection and stops the send
// loop. It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// sendLoop reads PCM AudioFrames from the output channel, slices them into
// exact Opus frame-sized chunks, encodes them, and sends the packets via the
// Discord voice connection.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "guild_id", c.guildID, "error", err)
		return
	}

	speaking := false
	var buf []byte

	for {
		select {
		case <-c.done:
			if speaking {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			buf = append(buf, frame.Data...)

			for len(buf) >= audio.FrameBytes {
				opus, eErr := enc.encode(buf[:audio.FrameBytes])
				buf = buf[audio.FrameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "guild_id", c.guildID, "error", eErr)
					continue
				}

				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleVoiceStateUpdate detects when the bot itself leaves voice in this
// guild without going through Disconnect.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || vsu.GuildID != c.guildID {
		return
	}
	if c.selfID == "" || vsu.UserID != c.selfID || vsu.ChannelID != "" {
		return
	}
	select {
	case <-c.done:
		// We initiated this ourselves.
		return
	default:
	}
	c.emitSevered()
}

// emitSevered invokes the OnDisconnect callback at most once.
func (c *Connection) emitSevered() {
	c.severedMu.Lock()
	if c.severed {
		c.severedMu.Unlock()
		return
	}
	c.severed = true
	cb := c.severedCb
	c.severedMu.Unlock()

	slog.Info("discord: voice connection severed externally", "guild_id", c.guildID)
	if cb != nil {
		go cb()
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
