package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalResolver decodes an audio file from disk. It serves /testlocal,
// which checks the voice path without any network extraction.
type LocalResolver struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg".
	FFmpegPath string
}

// Compile-time interface assertion.
var _ Resolver = (*LocalResolver)(nil)

// Resolve implements [Resolver]. track is a file path.
func (r *LocalResolver) Resolve(ctx context.Context, track string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(track)
	if err != nil {
		return nil, fmt.Errorf("stream: local file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stream: local file: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("stream: local file %q is a directory", track)
	}

	p := newPipeline()
	p.closeOnExit(f)
	if err := p.decode(ffmpegPath(r.FFmpegPath), "pipe:0", f); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("stream: %w", err)
	}
	return &Resource{ReadCloser: p, Track: track, Title: filepath.Base(track), Backend: "local"}, nil
}
