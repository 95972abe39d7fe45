package audio

import "time"

// Discord voice, and therefore every frame in voxplay, is 48 kHz stereo
// signed 16-bit little-endian PCM cut into 20 ms frames.
const (
	SampleRate = 48000
	Channels   = 2

	// FrameSamples is the number of samples per channel in one 20 ms frame.
	FrameSamples = SampleRate / 50 // 960

	// FrameBytes is the PCM byte length of one 20 ms frame.
	FrameBytes = FrameSamples * Channels * 2 // 3840
)

// AudioFrame is one 20 ms chunk of PCM audio flowing from a player to a
// [Connection].
type AudioFrame struct {
	// Data holds interleaved little-endian int16 samples, [FrameBytes] long.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 2 for stereo.
	Channels int

	// Timestamp is the offset of this frame from the start of its resource.
	Timestamp time.Duration
}
