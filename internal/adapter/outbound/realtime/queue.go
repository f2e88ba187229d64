package realtime

import "sync"

// Queue runs pushed functions one at a time, in push order, on its own
// goroutine.
type Queue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	notify chan struct{}
	done   chan struct{}
}

// NewQueue starts a queue goroutine. Close must be called to stop it.
func NewQueue() *Queue {
	q := &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Push appends fn. It returns false after Close.
func (q *Queue) Push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Close discards pending functions and stops the goroutine once the
// function currently running (if any) returns. Close does not wait, so it
// is safe to call from inside a queued function; use Done to wait.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Done is closed when the queue goroutine has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for range q.notify {
		for {
			q.mu.Lock()
			if q.closed {
				q.mu.Unlock()
				return
			}
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()

			fn()
		}
	}
}
