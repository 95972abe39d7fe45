package playback

import (
	"context"
	"errors"

	"github.com/MrWong99/voxplay/pkg/audio/player"
)

// bind routes p's signals into the room queue. It runs exactly once per
// player, when the player is created; what an event does is decided from the
// session state at the time the event is processed.
func (c *Controller) bind(s *session, p *player.Player) {
	p.OnStatus(func(tr player.Transition) {
		s.logger().Debug("player status",
			"from", tr.From.String(),
			"status", tr.To.String(),
		)
		switch tr.To {
		case player.StatusPlaying, player.StatusIdle:
			c.enqueue(s.roomID, func() { c.onStatus(s, tr) })
		}
	})
	p.OnError(func(err error) {
		s.logger().Warn("player error", "err", err)
		c.metrics.RecordPlayerError(context.Background())
	})
}

// onStatus runs on the room queue.
func (c *Controller) onStatus(s *session, tr player.Transition) {
	if c.sessions.get(s.roomID) != s || s.player == nil {
		return
	}
	// Events lag behind the player; a newer Play or Stop may already have
	// moved it on.
	if s.player.Status() != tr.To {
		return
	}

	switch tr.To {
	case player.StatusPlaying:
		s.idle.disarm()
	case player.StatusIdle:
		if s.loop == "" {
			// A stop already started the countdown at the moment the
			// player went idle.
			if !s.idle.armed() {
				c.armIdle(s)
			}
			return
		}
		if tr.From == player.StatusBuffering {
			s.logger().Warn("looped track produced no audio, leaving loop mode", "track", s.loop)
			s.loop = ""
			c.armIdle(s)
			return
		}
		c.replay(s)
	}
}

// replay restarts the loop target. On failure the room leaves loop mode and
// starts its idle countdown.
func (c *Controller) replay(s *session) {
	r := c.active(s.roomID)
	res, err := c.resolve(s.scope(c.ctx), r, r.now(), s.loop)
	if errors.Is(err, ErrSuperseded) {
		return
	}
	if err != nil {
		s.logger().Warn("loop replay failed, leaving loop mode", "track", s.loop, "err", err)
		s.loop = ""
		c.armIdle(s)
		return
	}
	if err := c.start(s, res, modeReplay); err != nil {
		s.logger().Warn("loop replay failed, leaving loop mode", "err", err)
		s.loop = ""
		c.armIdle(s)
	}
}

// armIdle starts s's idle countdown. Expiry is re-checked on the room queue.
func (c *Controller) armIdle(s *session) {
	s.idle.arm(func(gen uint64) {
		c.enqueue(s.roomID, func() { c.onIdleExpired(s, gen) })
	})
}

func (c *Controller) onIdleExpired(s *session, gen uint64) {
	if c.sessions.get(s.roomID) != s || !s.idle.expire(gen) {
		return
	}
	if s.loop != "" || (s.player != nil && s.player.Status() != player.StatusIdle) {
		return
	}
	s.logger().Info("idle timeout reached, leaving voice channel", "idle_timeout", c.idleTimeout)
	if err := c.teardown(s, reasonIdle); err != nil {
		s.logger().Warn("idle disconnect failed", "err", err)
	}
}

// onSevered reconciles the registry after the platform dropped the
// connection.
func (c *Controller) onSevered(s *session) {
	if c.sessions.get(s.roomID) != s {
		return
	}
	s.logger().Warn("voice connection severed externally")
	if err := c.teardown(s, reasonSevered); err != nil {
		s.logger().Debug("disconnect after severance", "err", err)
	}
}
