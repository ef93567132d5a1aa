package engine

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of file tasks shared by the dispatcher and the
// workers. Push blocks while the queue is full.
type Queue struct {
	ch        chan CopyTask
	closeOnce sync.Once
}

// NewQueue returns a queue holding at most capacity tasks.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan CopyTask, max(capacity, 1))}
}

// Push enqueues task, waiting for room. It returns ctx.Err() if the context
// is cancelled first. Push after Close panics.
func (q *Queue) Push(ctx context.Context, task CopyTask) error {
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next task. ok is false once the queue is closed and
// drained, or when ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (task CopyTask, ok bool) {
	if ctx.Err() != nil {
		return CopyTask{}, false
	}
	select {
	case task, ok = <-q.ch:
		return task, ok
	case <-ctx.Done():
		return CopyTask{}, false
	}
}

// Close marks the end of input. Workers finish what is queued, then exit.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Len is the number of queued tasks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the queue's capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
