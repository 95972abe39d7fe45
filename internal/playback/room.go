package playback

import (
	"context"
	"sync"
)

// room serializes all work for one room ID and tracks the resolve or voice
// connect currently in flight so that newer commands can cancel it.
type room struct {
	id string
	q  queue

	// users counts tasks pushed but not yet finished. Guarded by
	// Controller.mu; the controller forgets the room when it drops to zero
	// and the room has no session.
	users int

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
}

// supersede starts a new epoch and cancels any in-flight resolve or connect.
// It is called when a command is submitted, not when it runs.
func (r *room) supersede() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return r.epoch
}

func (r *room) current(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch == epoch
}

func (r *room) now() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// begin returns a context that is cancelled by the next supersede. ok is
// false when epoch is already stale.
func (r *room) begin(parent context.Context, epoch uint64) (ctx context.Context, done func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	return ctx, func() {
		r.mu.Lock()
		if r.epoch == epoch {
			r.cancel = nil
		}
		r.mu.Unlock()
		cancel()
	}, true
}
