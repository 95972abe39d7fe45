// Package player implements the per-room audio player: a playback engine that
// accepts one PCM resource at a time, paces it into a voice connection's
// output stream, and reports its progress through a status signal
// {Idle, Buffering, Playing, Paused} and an error signal.
//
// Status transitions and errors are delivered in order on a dedicated
// dispatcher goroutine, never synchronously from inside [Player.Play] or
// [Player.Stop]. Callers holding their own locks while commanding the player
// can therefore safely take those locks again inside the callbacks.
package player

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/voxplay/pkg/audio"
)

// ErrClosed is returned by [Player.Play] after [Player.Close].
var ErrClosed = errors.New("player: closed")

// frameDuration is the playback length of one [audio.FrameBytes] chunk.
const frameDuration = 20 * time.Millisecond

// Status is the externally visible state of a [Player].
type Status int

const (
	// StatusIdle means no resource is loaded. This is the initial state and
	// the state entered when a resource ends or is stopped.
	StatusIdle Status = iota

	// StatusBuffering means a resource was accepted but no audio has been
	// read from it yet.
	StatusBuffering

	// StatusPlaying means frames are flowing to the output stream.
	StatusPlaying

	// StatusPaused means a resource is loaded but frame delivery is suspended.
	StatusPaused
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBuffering:
		return "buffering"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Transition describes one status change.
type Transition struct {
	From Status
	To   Status
}

// Player plays one resource at a time into an output stream.
//
// All methods are safe for concurrent use.
type Player struct {
	out chan<- audio.AudioFrame

	mu       sync.Mutex
	status   Status
	current  *track
	unpause  chan struct{} // non-nil while paused
	onStatus func(Transition)
	onError  func(error)
	closed   bool

	events *dispatcher
}

// New creates an idle Player that writes frames to out. Typically out is the
// [audio.Connection.OutputStream] of the room's voice connection.
func New(out chan<- audio.AudioFrame) *Player {
	p := &Player{
		out:    out,
		status: StatusIdle,
	}
	p.events = newDispatcher(p.deliver)
	return p
}

// OnStatus registers cb as the status-signal callback. Only one callback may
// be registered; subsequent calls replace the previous one.
func (p *Player) OnStatus(cb func(Transition)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = cb
}

// OnError registers cb as the error-signal callback. An error never stops
// the player from accepting the next resource. Only one callback may be
// registered; subsequent calls replace the previous one.
func (p *Player) OnError(cb func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = cb
}

// Status returns the current status.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Play starts res immediately, replacing whatever was loaded before. The
// replaced resource is closed without an Idle transition: the player goes
// straight to Buffering for the new one. The player owns res from here on and
// closes it when playback ends.
func (p *Player) Play(res io.ReadCloser) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = res.Close()
		return ErrClosed
	}
	old := p.current
	t := newTrack(res)
	p.current = t
	p.clearPauseLocked()
	p.setStatusLocked(StatusBuffering)
	p.mu.Unlock()

	if old != nil {
		old.halt()
	}
	go p.run(t)
	return nil
}

// Stop unloads the current resource and moves the player to Idle. It reports
// whether a resource was loaded.
func (p *Player) Stop() bool {
	p.mu.Lock()
	t := p.current
	if t == nil {
		p.mu.Unlock()
		return false
	}
	p.current = nil
	p.clearPauseLocked()
	p.setStatusLocked(StatusIdle)
	p.mu.Unlock()

	t.halt()
	return true
}

// Pause suspends frame delivery. It reports whether the player was Playing.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPlaying {
		return false
	}
	p.unpause = make(chan struct{})
	p.setStatusLocked(StatusPaused)
	return true
}

// Unpause resumes frame delivery. It reports whether the player was Paused.
func (p *Player) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusPaused {
		return false
	}
	p.clearPauseLocked()
	p.setStatusLocked(StatusPlaying)
	return true
}

// Close stops playback and shuts down the event dispatcher after pending
// events were delivered. The player rejects further Play calls.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	t := p.current
	p.current = nil
	p.clearPauseLocked()
	p.setStatusLocked(StatusIdle)
	p.mu.Unlock()

	if t != nil {
		t.halt()
	}
	p.events.close()
}

// run pumps frames from t into the output stream until the resource ends or
// t is halted.
func (p *Player) run(t *track) {
	buf := make([]byte, audio.FrameBytes)
	var ts time.Duration
	started := false

	for {
		if !p.waitUnpaused(t) {
			return
		}

		_, err := io.ReadFull(t.res, buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = nil
			}
			p.finish(t, err)
			return
		}

		if !started {
			started = true
			p.mu.Lock()
			if p.current == t && p.status == StatusBuffering {
				p.setStatusLocked(StatusPlaying)
			}
			p.mu.Unlock()
		}

		frame := audio.AudioFrame{
			Data:       append([]byte(nil), buf...),
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			Timestamp:  ts,
		}
		select {
		case p.out <- frame:
		case <-t.stop:
			return
		}
		ts += frameDuration
	}
}

// waitUnpaused blocks while the player is paused. It returns false when t was
// halted in the meantime.
func (p *Player) waitUnpaused(t *track) bool {
	p.mu.Lock()
	ch := p.unpause
	p.mu.Unlock()
	if ch == nil {
		select {
		case <-t.stop:
			return false
		default:
			return true
		}
	}
	select {
	case <-ch:
		return true
	case <-t.stop:
		return false
	}
}

// finish moves the player to Idle if t is still the loaded resource. A halted
// (replaced or stopped) track never produces events.
func (p *Player) finish(t *track, err error) {
	p.mu.Lock()
	if p.current != t {
		p.mu.Unlock()
		return
	}
	p.current = nil
	if err != nil {
		p.events.push(event{err: err})
	}
	p.setStatusLocked(StatusIdle)
	p.mu.Unlock()

	t.halt()
}

// setStatusLocked records a status change and queues its event. p.mu must be
// held.
func (p *Player) setStatusLocked(s Status) {
	if p.status == s {
		return
	}
	tr := Transition{From: p.status, To: s}
	p.status = s
	p.events.push(event{transition: &tr})
}

func (p *Player) clearPauseLocked() {
	if p.unpause != nil {
		close(p.unpause)
		p.unpause = nil
	}
}

// deliver runs on the dispatcher goroutine.
func (p *Player) deliver(ev event) {
	p.mu.Lock()
	onStatus, onError := p.onStatus, p.onError
	p.mu.Unlock()

	if ev.err != nil {
		if onError != nil {
			onError(ev.err)
		}
		return
	}
	if ev.transition != nil && onStatus != nil {
		onStatus(*ev.transition)
	}
}

// track is one loaded resource.
type track struct {
	res      io.ReadCloser
	stop     chan struct{}
	haltOnce sync.Once
}

func newTrack(res io.ReadCloser) *track {
	return &track{res: res, stop: make(chan struct{})}
}

// halt signals the pump goroutine to exit and closes the resource, which
// also unblocks a pending read.
func (t *track) halt() {
	t.haltOnce.Do(func() {
		close(t.stop)
		_ = t.res.Close()
	})
}
