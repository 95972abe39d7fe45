package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLPResolver resolves tracks with the yt-dlp executable and decodes them
// with ffmpeg: yt-dlp writes the best audio stream to stdout, ffmpeg turns it
// into PCM. It supports every site yt-dlp supports.
type YTDLPResolver struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg".
	FFmpegPath string
}

// Compile-time interface assertion.
var _ Resolver = (*YTDLPResolver)(nil)

// Resolve probes the track's title (which also surfaces unavailable or
// private videos before anything is started) and then starts the
// download/decode pipeline.
func (r *YTDLPResolver) Resolve(ctx context.Context, track string) (*Resource, error) {
	title, err := r.probe(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("stream: ytdlp probe: %w", err)
	}

	p := newPipeline()
	dl := ytdlp.New().
		Format("bestaudio/best").
		Output("-").
		NoPart().
		NoPlaylist().
		NoWarnings().
		Quiet().
		IgnoreConfig().
		BuildCommand(p.ctx, track)

	dlOut, err := dl.StdoutPipe()
	if err != nil {
		p.cancel()
		return nil, fmt.Errorf("stream: ytdlp stdout pipe: %w", err)
	}
	if err := p.start(dl); err != nil {
		p.cancel()
		return nil, fmt.Errorf("stream: ytdlp start: %w", err)
	}
	if err := p.decode(ffmpegPath(r.FFmpegPath), "pipe:0", dlOut); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("stream: %w", err)
	}

	return &Resource{ReadCloser: p, Track: track, Title: title, Backend: "ytdlp"}, nil
}

func (r *YTDLPResolver) probe(ctx context.Context, track string) (string, error) {
	res, err := ytdlp.New().
		Print("%(title)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", track)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return "", err
	}
	return strings.TrimSpace(firstLine(res.Stdout)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func ffmpegPath(p string) string {
	if p == "" {
		return "ffmpeg"
	}
	return p
}
