package playback

import "sync"

// queue runs tasks one at a time in submission order. A worker goroutine is
// started when the first task arrives and exits once the queue drains, so an
// inactive room costs no goroutine.
//
// push never blocks, which lets player callbacks and timer expiries submit
// work while a task of the same room is running.
type queue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (q *queue) push(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.tasks = nil
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
