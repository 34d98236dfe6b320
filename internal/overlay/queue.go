package overlay

import (
	"sync"
	"time"
)

// FIFO of overlay events between the decoders and the renderer.
// Any goroutine may push; the renderer pops.
type Queue struct {
	mu     sync.Mutex
	events []*Event
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(e *Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
	q.signal()
}

// removes and returns the oldest event, nil when empty
func (q *Queue) Pop() *Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return e
}

// releases every queued event; when send is set a single FLUSH marker
// is left in the queue for the renderer
func (q *Queue) Flush(send bool) {
	q.mu.Lock()
	for _, e := range q.events {
		e.Release()
	}
	clear(q.events)
	q.events = q.events[:0]
	if send {
		q.events = append(q.events, &Event{Kind: KindFlush})
	}
	q.mu.Unlock()
	if send {
		q.signal()
	}
}

// enqueues a TIMED_FLUSH at pts
func (q *Queue) TimedFlush(pts time.Duration) {
	q.Push(&Event{Kind: KindTimedFlush, Start: pts})
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// returns a copy of the queued events without removing them
func (q *Queue) Peek() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Event, len(q.events))
	copy(out, q.events)
	return out
}

// receives a value after one or more pushes
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
