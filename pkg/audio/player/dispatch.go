package player

import "sync"

// event is either a status transition or an error signal.
type event struct {
	transition *Transition
	err        error
}

// dispatcher delivers events in order on its own goroutine. The queue is
// unbounded so that pushing never blocks the caller.
type dispatcher struct {
	handle func(event)

	mu    sync.Mutex
	queue []event

	wake      chan struct{}
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

func newDispatcher(handle func(event)) *dispatcher {
	d := &dispatcher{
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) push(ev event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops the loop after the queue has been drained.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	<-d.exited
}

func (d *dispatcher) loop() {
	defer close(d.exited)
	for {
		if d.drain() {
			continue
		}
		select {
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain delivers the current batch and reports whether anything was delivered.
func (d *dispatcher) drain() bool {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()
	for _, ev := range batch {
		d.handle(ev)
	}
	return len(batch) > 0
}
