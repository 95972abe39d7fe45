package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/MrWong99/voxplay/pkg/audio"
)

// pipeline is a chain of external processes ending in an ffmpeg decoder
// whose stdout carries the PCM stream. The processes are bound to the
// pipeline's own context rather than the resolution context, so they outlive
// Resolve and die on Close.
type pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc

	out     io.ReadCloser
	cmds    []*exec.Cmd
	closers []io.Closer

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func newPipeline() *pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &pipeline{ctx: ctx, cancel: cancel}
}

// start starts cmd and records it for cleanup.
func (p *pipeline) start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	p.cmds = append(p.cmds, cmd)
	return nil
}

// closeOnExit registers c to be closed before the processes are reaped.
func (p *pipeline) closeOnExit(c io.Closer) {
	p.closers = append(p.closers, c)
}

// decode starts ffmpeg reading input (a URL, or "pipe:0" with stdin set)
// and makes its stdout the pipeline output.
func (p *pipeline) decode(ffmpegPath, input string, stdin io.Reader) error {
	cmd := exec.CommandContext(p.ctx, ffmpegPath, ffmpegArgs(input, stdin == nil)...)
	cmd.Stdin = stdin
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := p.start(cmd); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	p.out = out
	return nil
}

// Read reads PCM from the decoder. When the decoder exits with a failure
// the failure is reported instead of a clean EOF.
func (p *pipeline) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if errors.Is(err, io.EOF) {
		if werr := p.wait(); werr != nil {
			return n, fmt.Errorf("stream: decoder exited: %w", werr)
		}
	}
	return n, err
}

// Close kills every process of the pipeline and reaps them.
func (p *pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		for _, c := range p.closers {
			_ = c.Close()
		}
		_ = p.wait()
	})
	return nil
}

// wait reaps all processes once and returns the decoder's exit error.
// Upstream exit codes are ignored: yt-dlp routinely dies of a broken pipe
// when ffmpeg stops reading first.
func (p *pipeline) wait() error {
	p.waitOnce.Do(func() {
		for i, cmd := range p.cmds {
			err := cmd.Wait()
			if i == len(p.cmds)-1 && p.ctx.Err() == nil {
				p.waitErr = err
			}
		}
	})
	return p.waitErr
}

// ffmpegArgs builds the decoder command line. Network inputs get reconnect
// flags so a dropped CDN connection does not end the track.
func ffmpegArgs(input string, network bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if network {
		args = append(args,
			"-nostdin",
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"pipe:1",
	)
}
