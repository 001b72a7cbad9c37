package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

func TestQueue_FIFOWithinLane(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, monitor.Task{
			ID:   id,
			Kind: monitor.TaskPoll,
			Mode: monitor.ModeRoutine,
		}))
	}

	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, want, task.ID)
	}
}

func TestQueue_HighLaneBeatsRoutinePolls(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, monitor.Task{ID: "routine", Kind: monitor.TaskPoll, Mode: monitor.ModeRoutine}))
	require.NoError(t, q.Enqueue(ctx, monitor.Task{ID: "first", Kind: monitor.TaskPoll, Mode: monitor.ModeFirstCheck}))
	require.NoError(t, q.Enqueue(ctx, monitor.Task{ID: "scan", Kind: monitor.TaskScan}))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", first.ID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan", second.ID)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "routine", third.ID)
}

func TestQueue_DepthCountsBothLanes(t *testing.T) {
	q := NewQueue(8)
	defer q.Close()
	ctx := context.Background()

	require.Zero(t, q.Depth())
	require.NoError(t, q.Enqueue(ctx, monitor.Task{Kind: monitor.TaskExpire}))
	require.NoError(t, q.Enqueue(ctx, monitor.Task{Kind: monitor.TaskPoll, Mode: monitor.ModeRoutine}))
	require.Equal(t, 2, q.Depth())

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.Depth())
}

func TestQueue_EnqueueBlocksUntilContextEnds(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), monitor.Task{Kind: monitor.TaskScan}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, monitor.Task{Kind: monitor.TaskScan})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_DequeueRespectsContext(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseUnblocksAndRejects(t *testing.T) {
	q := NewQueue(1)

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}

	require.ErrorIs(t, q.Enqueue(context.Background(), monitor.Task{Kind: monitor.TaskScan}), ErrClosed)
	q.Close() // idempotent
}

func TestQueue_CloseUnblocksBlockedEnqueue(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), monitor.Task{Kind: monitor.TaskScan}))

	done := make(chan error, 1)
	go func() {
		// Lane is full: this send blocks until Close.
		done <- q.Enqueue(context.Background(), monitor.Task{Kind: monitor.TaskScan})
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not return after close")
	}
}
