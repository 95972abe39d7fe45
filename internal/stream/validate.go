package stream

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// youtubeHosts are the hosts whose URLs are checked for a video ID.
var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// Validator checks track references. The zero value accepts YouTube video
// URLs only.
type Validator struct {
	// AllowedHosts lists additional hosts (e.g. "cdn.example.com") whose
	// http(s) URLs are passed to the decoder as direct links.
	AllowedHosts []string

	// LocalFile, if set, is the one file path accepted as a track.
	LocalFile string
}

// Validate implements [Provider.Validate].
func (v Validator) Validate(track string) error {
	if v.isLocal(track) {
		return nil
	}
	u, err := parseTrackURL(track)
	if err != nil {
		return err
	}
	host := strings.ToLower(u.Hostname())

	if isYouTubeHost(host) {
		if _, err := videoID(u); err != nil {
			return err
		}
		return nil
	}
	for _, allowed := range v.AllowedHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported host %q", ErrInvalidTrack, host)
}

func (v Validator) isLocal(track string) bool {
	return v.LocalFile != "" && track == v.LocalFile
}

func parseTrackURL(track string) (*url.URL, error) {
	track = strings.TrimSpace(track)
	if track == "" {
		return nil, fmt.Errorf("%w: empty track", ErrInvalidTrack)
	}
	u, err := url.Parse(track)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidTrack)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTrack)
	}
	return u, nil
}

func isYouTubeHost(host string) bool {
	return youtubeHosts[strings.ToLower(host)]
}

// videoID extracts the video ID from a YouTube URL. Only URLs that address a
// single video are accepted; channel and feed pages are not.
func videoID(u *url.URL) (string, error) {
	var candidate string
	path := strings.Trim(u.Path, "/")
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		candidate = path
	case u.Query().Get("v") != "":
		candidate = u.Query().Get("v")
	default:
		for _, prefix := range []string{"shorts/", "embed/", "live/"} {
			if rest, ok := strings.CutPrefix(path, prefix); ok {
				candidate = rest
				break
			}
		}
	}
	if candidate == "" {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidTrack, u.String())
	}
	id, err := youtube.ExtractVideoID(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}
	return id, nil
}
