// Package playback owns the per-room voice sessions of the agent.
//
// A [Controller] keeps, for every room it is present in, the voice
// connection, a lazily created audio player, an optional loop target and an
// idle countdown, and keeps them consistent while commands and player events
// interleave. All work for a room (commands, player events, idle expiry,
// external disconnects) runs in arrival order on that room's queue; rooms are
// independent of each other.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxplay/internal/observe"
	"github.com/MrWong99/voxplay/internal/stream"
	"github.com/MrWong99/voxplay/pkg/audio"
	"github.com/MrWong99/voxplay/pkg/audio/player"
)

// Playback start modes reported to metrics.
const (
	modePlay   = "play"
	modeLoop   = "loop"
	modeReplay = "replay"
)

// Session end reasons reported to metrics.
const (
	reasonDisconnect = "disconnect"
	reasonIdle       = "idle"
	reasonSevered    = "severed"
	reasonShutdown   = "shutdown"
)

// Requester identifies the member issuing a command.
type Requester struct {
	// UserID is the platform user ID.
	UserID string

	// ChannelID is the voice channel the member is in, or empty when the
	// member is not in voice.
	ChannelID string
}

// NowPlaying describes a track that was successfully started.
type NowPlaying struct {
	SessionID string
	Track     string
	Title     string
	Loop      bool
}

// RoomState is a point-in-time view of a room.
type RoomState struct {
	RoomID    string
	Connected bool
	SessionID string
	ChannelID string
	StartedAt time.Time
	HasPlayer bool
	Status    player.Status
	Loop      string
	IdleArmed bool
}

// Config holds the dependencies of a [Controller].
type Config struct {
	// Platform joins voice channels.
	Platform audio.Platform

	// Provider validates and resolves track references.
	Provider stream.Provider

	// IdleTimeout is how long a room may stay idle before the agent leaves.
	// Defaults to [DefaultIdleTimeout].
	IdleTimeout time.Duration

	// ResolveTimeout bounds a single stream resolution. Zero means no bound
	// beyond the caller's context.
	ResolveTimeout time.Duration

	// Metrics receives session and playback metrics. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// AfterFunc schedules idle countdowns. Defaults to [time.AfterFunc].
	AfterFunc AfterFunc
}

// Controller implements the playback commands. All exported methods are safe
// for concurrent use.
type Controller struct {
	platform       audio.Platform
	provider       stream.Provider
	idleTimeout    time.Duration
	resolveTimeout time.Duration
	metrics        *observe.Metrics
	after          AfterFunc

	// ctx parents loop replays; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	sessions *registry

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = stdAfterFunc
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		platform:       cfg.Platform,
		provider:       cfg.Provider,
		idleTimeout:    cfg.IdleTimeout,
		resolveTimeout: cfg.ResolveTimeout,
		metrics:        cfg.Metrics,
		after:          cfg.AfterFunc,
		ctx:            ctx,
		cancel:         cancel,
		sessions:       newRegistry(),
		rooms:          make(map[string]*room),
	}
}

// Join connects to the requester's voice channel without playing anything.
// Joining a room that already has a session is a no-op. A fresh session
// starts its idle countdown right away.
func (c *Controller) Join(ctx context.Context, roomID string, req Requester) error {
	if req.ChannelID == "" {
		return ErrNotInVoiceChannel
	}
	ctx = observe.WithGuild(ctx, roomID)
	r, err := c.acquire(roomID)
	if err != nil {
		return err
	}
	epoch := r.now()

	_, err = submit(ctx, c, r, func() (struct{}, error) {
		s, created, err := c.connect(ctx, r, epoch, req.ChannelID)
		if err != nil {
			return struct{}{}, err
		}
		if created {
			c.armIdle(s)
		}
		return struct{}{}, nil
	})
	return err
}

// Validate reports whether track is a link the stream provider accepts.
// It has no side effects and wraps [ErrInvalidTrack] on rejection.
func (c *Controller) Validate(track string) error {
	if err := c.provider.Validate(track); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrack, err)
	}
	return nil
}

// Play replaces whatever the room is playing with track, joining the
// requester's voice channel first if the room has no session. Any loop ends.
func (c *Controller) Play(ctx context.Context, roomID string, req Requester, track string) (NowPlaying, error) {
	return c.playCommand(ctx, roomID, req, track, false, true)
}

// Loop is like [Controller.Play] but keeps restarting track every time it
// ends, until the room receives play, stop or disconnect.
func (c *Controller) Loop(ctx context.Context, roomID string, req Requester, track string) (NowPlaying, error) {
	return c.playCommand(ctx, roomID, req, track, true, true)
}

// PlayLocal is like [Controller.Play] for a room that already has a
// session: it never joins and fails with [ErrNotConnected] instead.
func (c *Controller) PlayLocal(ctx context.Context, roomID, track string) (NowPlaying, error) {
	return c.playCommand(ctx, roomID, Requester{}, track, false, false)
}

// playCommand runs play and loop. join allows connecting to the
// requester's channel when the room has no session.
func (c *Controller) playCommand(ctx context.Context, roomID string, req Requester, track string, loop, join bool) (NowPlaying, error) {
	if join && req.ChannelID == "" {
		return NowPlaying{}, ErrNotInVoiceChannel
	}
	if err := c.Validate(track); err != nil {
		return NowPlaying{}, err
	}
	ctx = observe.WithGuild(ctx, roomID)
	r, err := c.acquire(roomID)
	if err != nil {
		return NowPlaying{}, err
	}
	epoch := r.supersede()

	return submit(ctx, c, r, func() (NowPlaying, error) {
		if !r.current(epoch) {
			return NowPlaying{}, ErrSuperseded
		}
		if s := c.sessions.get(roomID); s != nil {
			s.loop = ""
		} else if !join {
			return NowPlaying{}, ErrNotConnected
		}

		res, err := c.resolve(ctx, r, epoch, track)
		if err != nil {
			c.settle(roomID)
			return NowPlaying{}, err
		}

		s, _, err := c.connect(ctx, r, epoch, req.ChannelID)
		if err != nil {
			_ = res.Close()
			return NowPlaying{}, err
		}

		mode := modePlay
		if loop {
			s.loop = track
			mode = modeLoop
		}
		np := NowPlaying{SessionID: s.id, Track: track, Title: res.Title, Loop: loop}
		if err := c.start(s, res, mode); err != nil {
			s.loop = ""
			c.settle(roomID)
			return NowPlaying{}, err
		}

		observe.Logger(observe.WithSession(ctx, s.id)).Info("playback started",
			"track", track,
			"title", res.Title,
			"backend", res.Backend,
			"loop", loop,
		)
		return np, nil
	})
}

// Stop ends the current track and any loop but stays in the voice channel.
// The idle countdown starts.
func (c *Controller) Stop(ctx context.Context, roomID string) error {
	ctx = observe.WithGuild(ctx, roomID)
	r, err := c.acquire(roomID)
	if err != nil {
		return err
	}
	r.supersede()

	_, err = submit(ctx, c, r, func() (struct{}, error) {
		s := c.sessions.get(roomID)
		if s == nil {
			return struct{}{}, ErrNotConnected
		}
		if s.player == nil || (s.player.Status() == player.StatusIdle && s.loop == "") {
			return struct{}{}, ErrNothingPlaying
		}
		s.loop = ""
		s.player.Stop()
		c.armIdle(s)
		observe.Logger(observe.WithSession(ctx, s.id)).Info("playback stopped")
		return struct{}{}, nil
	})
	return err
}

// Disconnect leaves the room's voice channel and forgets the session. The
// session is removed even when leaving fails; the failure is reported
// wrapped in [ErrTeardown].
func (c *Controller) Disconnect(ctx context.Context, roomID string) error {
	r, err := c.acquire(roomID)
	if err != nil {
		return err
	}
	r.supersede()

	_, err = submit(ctx, c, r, func() (struct{}, error) {
		s := c.sessions.get(roomID)
		if s == nil {
			return struct{}{}, ErrNotConnected
		}
		if err := c.teardown(s, reasonDisconnect); err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrTeardown, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Snapshot returns the state of a room. It waits for earlier work on the
// room to finish.
func (c *Controller) Snapshot(ctx context.Context, roomID string) (RoomState, error) {
	return submit(ctx, c, c.hold(roomID), func() (RoomState, error) {
		st := RoomState{RoomID: roomID}
		s := c.sessions.get(roomID)
		if s == nil {
			return st, nil
		}
		st.Connected = true
		st.SessionID = s.id
		st.ChannelID = s.channelID
		st.StartedAt = s.startedAt
		st.Loop = s.loop
		st.IdleArmed = s.idle.armed()
		if s.player != nil {
			st.HasPlayer = true
			st.Status = s.player.Status()
		}
		return st, nil
	})
}

// Sessions returns the number of rooms with a live session.
func (c *Controller) Sessions() int {
	return c.sessions.len()
}

// Close leaves every voice channel and rejects further commands. Every
// known room is superseded, including rooms whose first play is still
// resolving or connecting, so no session outlives Close. Rooms are torn down
// concurrently; ctx bounds the wait.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	held := make([]*room, 0, len(c.rooms))
	for id := range c.rooms {
		held = append(held, c.holdLocked(id))
	}
	c.mu.Unlock()
	defer c.cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range held {
		id := r.id
		r.supersede()
		wg.Go(func() {
			_, err := submit(ctx, c, r, func() (struct{}, error) {
				s := c.sessions.get(id)
				if s == nil {
					return struct{}{}, nil
				}
				return struct{}{}, c.teardown(s, reasonShutdown)
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("room %s: %w", id, err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// resolve runs the provider for track under epoch. A supersede during the
// call turns any outcome into ErrSuperseded.
func (c *Controller) resolve(parent context.Context, r *room, epoch uint64, track string) (*stream.Resource, error) {
	ctx, done, ok := r.begin(parent, epoch)
	if !ok {
		return nil, ErrSuperseded
	}
	defer done()

	if c.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resolveTimeout)
		defer cancel()
	}
	ctx, span := observe.StartSpan(ctx, "stream.resolve")
	defer span.End()
	span.SetAttributes(observe.Attr("track", track))

	began := time.Now()
	res, err := c.provider.Resolve(ctx, track)
	if !r.current(epoch) {
		if res != nil {
			_ = res.Close()
		}
		c.metrics.RecordResolve(context.Background(), time.Since(began), "superseded")
		return nil, ErrSuperseded
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, stream.ErrInvalidTrack) {
			c.metrics.RecordResolve(context.Background(), time.Since(began), "invalid")
			return nil, fmt.Errorf("%w: %w", ErrInvalidTrack, err)
		}
		c.metrics.RecordResolve(context.Background(), time.Since(began), "error")
		return nil, fmt.Errorf("%w: %w", ErrStreamResolution, err)
	}
	c.metrics.RecordResolve(context.Background(), time.Since(began), "ok")
	return res, nil
}

// connect returns the room's session, joining channelID under epoch when
// there is none. A supersede cancels a pending join and turns its outcome
// into ErrSuperseded. After Close no new session is created. Must run on the
// room queue.
func (c *Controller) connect(parent context.Context, r *room, epoch uint64, channelID string) (*session, bool, error) {
	if s := c.sessions.get(r.id); s != nil {
		return s, false, nil
	}
	if c.isClosed() {
		return nil, false, ErrClosed
	}
	ctx, done, ok := r.begin(parent, epoch)
	if !ok {
		return nil, false, ErrSuperseded
	}
	s, created, err := c.ensureSession(ctx, r.id, channelID)
	done()
	if !r.current(epoch) {
		if created {
			// The command that superseded this one runs next and owns
			// the fresh session; it must not stay unattended.
			c.armIdle(s)
		}
		return nil, false, ErrSuperseded
	}
	return s, created, err
}

// ensureSession returns the room's session, joining channelID when there is
// none. Must run on the room queue.
func (c *Controller) ensureSession(ctx context.Context, roomID, channelID string) (*session, bool, error) {
	return c.sessions.ensure(roomID, func() (*session, error) {
		conn, err := c.platform.Connect(ctx, roomID, channelID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVoiceConnect, err)
		}
		s := &session{
			id:        uuid.NewString(),
			roomID:    roomID,
			channelID: channelID,
			startedAt: time.Now(),
			conn:      conn,
			idle:      idleTimer{after: c.after, timeout: c.idleTimeout},
		}
		conn.OnDisconnect(func() {
			c.enqueue(roomID, func() { c.onSevered(s) })
		})
		c.metrics.RecordSessionStart(context.Background())
		observe.Logger(observe.WithSession(ctx, s.id)).Info("joined voice channel", "channel_id", channelID)
		return s, nil
	})
}

// start hands res to the session's player, creating the player on first
// use.
func (c *Controller) start(s *session, res *stream.Resource, mode string) error {
	if s.player == nil {
		p := player.New(s.conn.OutputStream())
		c.bind(s, p)
		s.player = p
	}
	s.idle.disarm()
	if err := s.player.Play(res); err != nil {
		return fmt.Errorf("playback: start %s: %w", mode, err)
	}
	c.metrics.RecordPlaybackStart(context.Background(), mode)
	return nil
}

// settle starts the idle countdown of a room whose command failed, if the
// room is left without anything to play.
func (c *Controller) settle(roomID string) {
	s := c.sessions.get(roomID)
	if s == nil || s.loop != "" || s.idle.armed() {
		return
	}
	if s.player == nil || s.player.Status() == player.StatusIdle {
		c.armIdle(s)
	}
}

// teardown ends s. It is idempotent with respect to the registry and always
// removes s, returning the connection's disconnect error if any.
func (c *Controller) teardown(s *session, reason string) error {
	s.idle.disarm()
	s.loop = ""
	if s.player != nil {
		s.player.Close()
	}
	err := s.conn.Disconnect()
	c.sessions.remove(s)
	c.metrics.RecordSessionEnd(context.Background(), reason)

	s.logger().Info("left voice channel",
		"reason", reason,
		"duration", time.Since(s.startedAt).Round(time.Second),
	)
	return err
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// acquire holds the room for a new command, or returns ErrClosed after
// Close. The hold is handed to submit, which releases it.
func (c *Controller) acquire(roomID string) (*room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.holdLocked(roomID), nil
}

// hold returns the room for roomID, creating it if needed, and counts one
// more task for it.
func (c *Controller) hold(roomID string) *room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdLocked(roomID)
}

func (c *Controller) holdLocked(roomID string) *room {
	r, ok := c.rooms[roomID]
	if !ok {
		r = &room{id: roomID}
		c.rooms[roomID] = r
	}
	r.users++
	return r
}

// release ends a task's hold on r. A room nobody holds and without a
// session is forgotten; the next command starts a fresh one.
func (c *Controller) release(r *room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.users--
	if r.users == 0 && c.rooms[r.id] == r && c.sessions.get(r.id) == nil {
		delete(c.rooms, r.id)
	}
}

// active returns the room whose queue is running the caller.
func (c *Controller) active(roomID string) *room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *Controller) enqueue(roomID string, task func()) {
	r := c.hold(roomID)
	r.q.push(func() {
		task()
		c.release(r)
	})
}

// submit runs fn on r's queue and waits for its result or ctx. r must be
// held; the hold is released once fn returns.
func submit[T any](ctx context.Context, c *Controller, r *room, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	r.q.push(func() {
		v, err := fn()
		c.release(r)
		ch <- result{v, err}
	})
	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
