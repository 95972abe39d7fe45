// Package audio defines the interfaces and types for voice-channel
// connectivity used by the voxplay playback agent.
//
// The two primary abstractions are:
//
//   - [Platform]: joins a voice channel in a room and returns a [Connection].
//   - [Connection]: the agent's presence in that channel. Audio written to
//     its output stream is transmitted to everyone in the channel.
//
// Implementations live in platform-specific adapter packages (audio/discord).
// The interfaces are intentionally narrow so the playback core never touches
// the transport protocol itself.
package audio

import (
	"context"
)

// Connection represents the agent's joined presence in a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called or the platform reports that the
// agent was removed from the channel.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// OutputStream returns the write-only channel that feeds the transport.
	// Subscribing a player to the connection means handing it this channel.
	// The channel is buffered; writers block while the transport is busy,
	// which paces playback at real time.
	//
	// The platform does NOT close this channel on Disconnect, and nothing
	// reads it afterwards: once the buffer is full, writes after Disconnect
	// block forever. Stop the writer (close the player) before calling
	// Disconnect.
	OutputStream() chan<- AudioFrame

	// OnDisconnect registers cb to be invoked once when the connection is
	// severed by the remote side (kicked, channel deleted, moved out).
	// It is not invoked for a local [Connection.Disconnect]. Only one callback
	// may be registered; subsequent calls replace the previous one.
	// The callback runs on an internal goroutine and must not block.
	OnDisconnect(cb func())

	// Disconnect leaves the voice channel. It is safe to call Disconnect more
	// than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel channelID inside the room roomID and
	// returns an active [Connection]. The supplied ctx governs the connection
	// attempt only.
	Connect(ctx context.Context, roomID, channelID string) (Connection, error)
}
