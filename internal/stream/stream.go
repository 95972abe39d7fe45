// Package stream turns user-supplied track references into decodable audio.
//
// A [Provider] validates a track reference without any I/O and resolves it
// into a [Resource]: a live 48 kHz stereo s16le PCM stream ready for the
// audio player. The production provider ([Service]) tries yt-dlp first and
// falls back to a pure-Go YouTube client, each behind its own circuit
// breaker.
package stream

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidTrack is returned by [Provider.Validate] (and by Resolve) when a
// track reference is malformed or points at an unsupported source.
var ErrInvalidTrack = errors.New("stream: invalid track")

// Provider validates and resolves track references.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Validate checks that track is a well-formed, supported reference. It
	// performs no network I/O.
	Validate(track string) error

	// Resolve fetches track and starts decoding it. ctx governs the
	// resolution phase only; the returned Resource stays live until closed.
	Resolve(ctx context.Context, track string) (*Resource, error)
}

// Resolver is a single resolution backend.
type Resolver interface {
	Resolve(ctx context.Context, track string) (*Resource, error)
}

// Resource is a live PCM stream for one track. Reading yields interleaved
// little-endian int16 samples at 48 kHz stereo. Close stops every process
// involved in producing the stream and is safe to call more than once.
type Resource struct {
	io.ReadCloser

	// Track is the reference the resource was resolved from.
	Track string

	// Title is the human-readable title, if the backend could determine one.
	Title string

	// Backend names the resolver that produced the resource.
	Backend string
}

// DisplayName returns the title when known and the track reference otherwise.
func (r *Resource) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Track
}
