package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxplay/internal/observe"

	"github.com/MrWong99/voxplay/pkg/audio"
	"github.com/MrWong99/voxplay/pkg/audio/player"
)

// session is the state of one room the agent is present in. Its fields are
// only read and written from the room's queue.
type session struct {
	id        string
	roomID    string
	channelID string
	startedAt time.Time

	conn   audio.Connection
	player *player.Player // created on first playback

	// loop is the track replayed on every Idle transition; empty when the
	// room is not looping.
	loop string

	idle idleTimer
}

// scope tags ctx with the session's guild and session IDs.
func (s *session) scope(ctx context.Context) context.Context {
	return observe.WithSession(observe.WithGuild(ctx, s.roomID), s.id)
}

func (s *session) logger() *slog.Logger {
	return observe.Logger(s.scope(context.Background()))
}

// registry maps room IDs to sessions. The mutex guards the map only; the
// per-room queue makes get-then-put sequences for one room atomic.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) get(roomID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[roomID]
}

// ensure returns the room's session, creating it with factory when absent.
// created reports whether factory ran successfully.
func (r *registry) ensure(roomID string, factory func() (*session, error)) (s *session, created bool, err error) {
	if s := r.get(roomID); s != nil {
		return s, false, nil
	}
	s, err = factory()
	if err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	r.sessions[roomID] = s
	r.mu.Unlock()
	return s, true, nil
}

// remove deletes s if it is still the room's session.
func (r *registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.roomID] == s {
		delete(r.sessions, s.roomID)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
