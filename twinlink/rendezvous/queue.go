package rendezvous

import "sync"

// Queue is an unbounded ordered event queue feeding a channel. Producers
// never block; consumers read from Out in push order. It backs the event
// streams of the transport implementations and the exchange session.
type Queue[T any] struct {
	mu      sync.Mutex
	pending []T
	wake    chan struct{}
	done    chan struct{}
	out     chan T
	closed  bool
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan T),
	}
	go q.pump()
	return q
}

// Push appends an event. Pushes after Close are dropped.
func (q *Queue[T]) Push(ev T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Out returns the consumer channel. It is closed shortly after Close;
// events not yet consumed at that point are dropped.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Close stops the queue. Idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

func (q *Queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
