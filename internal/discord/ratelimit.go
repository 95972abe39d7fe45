package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedUsers bounds the limiter map before idle entries are pruned.
	maxTrackedUsers = 4096

	// limiterIdle is how long a user's limiter survives without use once
	// pruning kicks in.
	limiterIdle = 10 * time.Minute
)

// Throttle is a per-user token bucket shared by all commands. A user may
// issue perMinute commands in a burst and then one every 60/perMinute
// seconds. A zero limit disables throttling.
type Throttle struct {
	mu        sync.Mutex
	perMinute int
	users     map[string]*userLimiter
	now       func() time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a Throttle allowing perMinute commands per user.
func NewThrottle(perMinute int) *Throttle {
	return &Throttle{
		perMinute: max(perMinute, 0),
		users:     make(map[string]*userLimiter),
		now:       time.Now,
	}
}

// Allow reports whether userID may run a command now and consumes a token
// if so.
func (t *Throttle) Allow(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perMinute == 0 {
		return true
	}

	now := t.now()
	u, ok := t.users[userID]
	if !ok {
		if len(t.users) >= maxTrackedUsers {
			t.pruneLocked(now)
		}
		u = &userLimiter{lim: rate.NewLimiter(perMinuteLimit(t.perMinute), t.perMinute)}
		t.users[userID] = u
	}
	u.lastSeen = now
	return u.lim.AllowN(now, 1)
}

// SetLimit changes the limit for all users, keeping their current buckets.
func (t *Throttle) SetLimit(perMinute int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	perMinute = max(perMinute, 0)
	if perMinute == t.perMinute {
		return
	}
	t.perMinute = perMinute
	if perMinute == 0 {
		clear(t.users)
		return
	}
	now := t.now()
	for _, u := range t.users {
		u.lim.SetLimitAt(now, perMinuteLimit(perMinute))
		u.lim.SetBurstAt(now, perMinute)
	}
}

// Limit returns the current per-minute limit.
func (t *Throttle) Limit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.perMinute
}

func (t *Throttle) pruneLocked(now time.Time) {
	for id, u := range t.users {
		if now.Sub(u.lastSeen) > limiterIdle {
			delete(t.users, id)
		}
	}
}

func perMinuteLimit(n int) rate.Limit {
	return rate.Limit(float64(n) / 60)
}
