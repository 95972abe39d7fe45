package playback

import "time"

// DefaultIdleTimeout is used when [Config.IdleTimeout] is zero.
const DefaultIdleTimeout = 30 * time.Second

// Timer is a scheduled callback that can be cancelled. *time.Timer satisfies
// it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d on its own goroutine.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// idleTimer is a session's idle countdown. It is only touched from the room
// queue; the scheduled callback merely reports the generation it was armed
// with, and the queue decides whether that generation is still current.
type idleTimer struct {
	after   AfterFunc
	timeout time.Duration

	t   Timer
	gen uint64
}

// arm cancels any pending countdown and starts a new one. onExpire receives
// the generation of this arming.
func (it *idleTimer) arm(onExpire func(gen uint64)) {
	it.disarm()
	it.gen++
	gen := it.gen
	it.t = it.after(it.timeout, func() { onExpire(gen) })
}

// disarm cancels the pending countdown, if any.
func (it *idleTimer) disarm() {
	if it.t == nil {
		return
	}
	it.t.Stop()
	it.t = nil
}

func (it *idleTimer) armed() bool { return it.t != nil }

// expire consumes the countdown armed as gen. It reports false when the
// countdown was disarmed or re-armed since.
func (it *idleTimer) expire(gen uint64) bool {
	if it.t == nil || it.gen != gen {
		return false
	}
	it.t = nil
	return true
}
