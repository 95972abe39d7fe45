package playback

import "errors"

// User input errors. Nothing about the room changes when these are returned.
var (
	// ErrNotInVoiceChannel means the requesting member is not in a voice
	// channel of the room.
	ErrNotInVoiceChannel = errors.New("playback: requester is not in a voice channel")

	// ErrInvalidTrack means the track reference failed validation.
	ErrInvalidTrack = errors.New("playback: invalid track")
)

// Precondition errors.
var (
	// ErrNotConnected means the room has no session.
	ErrNotConnected = errors.New("playback: not connected")

	// ErrNothingPlaying means the room's player is absent or idle and no loop
	// is active.
	ErrNothingPlaying = errors.New("playback: nothing playing")
)

var (
	// ErrStreamResolution wraps a stream provider failure. The room keeps
	// whatever it was playing before the command.
	ErrStreamResolution = errors.New("playback: stream resolution failed")

	// ErrVoiceConnect wraps a failure to join the requester's voice channel.
	ErrVoiceConnect = errors.New("playback: voice connect failed")

	// ErrTeardown wraps a failure to leave the voice channel. The session is
	// removed regardless.
	ErrTeardown = errors.New("playback: teardown failed")

	// ErrSuperseded is returned by a play or loop whose resolution was
	// cancelled because a newer command for the same room arrived.
	ErrSuperseded = errors.New("playback: superseded by a newer command")

	// ErrClosed is returned by commands issued after [Controller.Close].
	ErrClosed = errors.New("playback: controller closed")
)
