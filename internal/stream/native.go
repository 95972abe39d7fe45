package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/kkdai/youtube/v2"
)

// NativeResolver resolves tracks without yt-dlp. YouTube videos are fetched
// with the pure-Go kkdai/youtube client; any other URL is handed to ffmpeg
// as a direct link. It serves as the fallback when yt-dlp is missing or
// failing.
type NativeResolver struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg".
	FFmpegPath string

	// Client is the YouTube client. Default: a zero youtube.Client.
	Client *youtube.Client
}

// Compile-time interface assertion.
var _ Resolver = (*NativeResolver)(nil)

// Resolve implements [Resolver].
func (r *NativeResolver) Resolve(ctx context.Context, track string) (*Resource, error) {
	u, err := parseTrackURL(track)
	if err != nil {
		return nil, err
	}
	if isYouTubeHost(u.Hostname()) {
		id, err := videoID(u)
		if err != nil {
			return nil, err
		}
		return r.resolveYouTube(ctx, track, id)
	}

	p := newPipeline()
	if err := p.decode(ffmpegPath(r.FFmpegPath), track, nil); err != nil {
		p.cancel()
		return nil, fmt.Errorf("stream: %w", err)
	}
	return &Resource{ReadCloser: p, Track: track, Backend: "native"}, nil
}

func (r *NativeResolver) resolveYouTube(ctx context.Context, track, id string) (*Resource, error) {
	client := r.Client
	if client == nil {
		client = &youtube.Client{}
	}
	video, err := client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stream: youtube get video: %w", err)
	}
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, errors.New("stream: youtube: no audio formats")
	}

	p := newPipeline()
	// The body must outlive ctx, so it is bound to the pipeline instead.
	body, _, err := client.GetStreamContext(p.ctx, video, &formats[0])
	if err != nil {
		p.cancel()
		return nil, fmt.Errorf("stream: youtube get stream: %w", err)
	}
	p.closeOnExit(body)
	if err := p.decode(ffmpegPath(r.FFmpegPath), "pipe:0", body); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("stream: %w", err)
	}
	return &Resource{ReadCloser: p, Track: track, Title: video.Title, Backend: "native"}, nil
}
