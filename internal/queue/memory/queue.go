// Package memory provides the in-process task queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// ErrClosed is returned when operating on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with two lanes. Control tasks and
// first-check polls go to the high lane so a backlog of routine polls
// cannot starve them; routine polls go to the normal lane. Dequeue drains
// the high lane first.
type Queue struct {
	high      chan monitor.Task
	normal    chan monitor.Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue where each lane holds up to capacity tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		high:   make(chan monitor.Task, capacity),
		normal: make(chan monitor.Task, capacity),
		done:   make(chan struct{}),
	}
}

func (q *Queue) lane(task monitor.Task) chan monitor.Task {
	if task.Kind == monitor.TaskPoll && task.Mode == monitor.ModeRoutine {
		return q.normal
	}
	return q.high
}

// Enqueue pushes a task into its lane or returns if the context ends.
// The lane channels are never closed, so a send racing Close cannot
// panic; shutdown is signaled through the done channel instead.
func (q *Queue) Enqueue(ctx context.Context, task monitor.Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.lane(task) <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. A waiting
// high-lane task always wins over the normal lane.
func (q *Queue) Dequeue(ctx context.Context) (monitor.Task, error) {
	select {
	case task := <-q.high:
		return task, nil
	default:
	}

	select {
	case <-q.done:
		return monitor.Task{}, ErrClosed
	case <-ctx.Done():
		return monitor.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.high:
		return task, nil
	case task := <-q.normal:
		return task, nil
	}
}

// Depth reports the number of queued tasks across both lanes.
func (q *Queue) Depth() int {
	return len(q.high) + len(q.normal)
}

// Close shuts the queue down, unblocking any waiting producers and
// consumers. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
