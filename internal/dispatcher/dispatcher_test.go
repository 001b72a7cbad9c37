package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/id/uuid"
	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
	"github.com/lexwatch/dje-monitor/internal/worker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingQueue struct {
	tasks   chan monitor.Task
	started chan struct{}
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{
		tasks:   make(chan monitor.Task, 64),
		started: make(chan struct{}, 1),
	}
}

func (q *recordingQueue) Enqueue(_ context.Context, task monitor.Task) error {
	q.tasks <- task
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (monitor.Task, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return monitor.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
}

func (q *recordingQueue) Depth() int { return len(q.tasks) }

type errorQueue struct{ err error }

func (q *errorQueue) Enqueue(context.Context, monitor.Task) error { return q.err }
func (q *errorQueue) Dequeue(context.Context) (monitor.Task, error) {
	return monitor.Task{}, nil
}
func (q *errorQueue) Depth() int { return 0 }

func newDispatcher(q monitor.Queue, workers []*worker.Worker, period time.Duration) *Dispatcher {
	return New(q, workers, fixedClock{time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)},
		uuid.New(), Config{CyclePeriod: period}, zap.NewNop())
}

func TestTriggerCycle_SubmitsExpireSelectScan(t *testing.T) {
	t.Parallel()

	q := newRecordingQueue()
	d := newDispatcher(q, nil, time.Hour)

	require.NoError(t, d.TriggerCycle(context.Background()))

	var kinds []monitor.TaskKind
	for i := 0; i < 3; i++ {
		task := <-q.tasks
		require.NotEmpty(t, task.ID)
		kinds = append(kinds, task.Kind)
	}
	require.Equal(t, []monitor.TaskKind{monitor.TaskExpire, monitor.TaskSelect, monitor.TaskScan}, kinds)
	require.Zero(t, q.Depth())
}

func TestSubmitFirstCheck(t *testing.T) {
	t.Parallel()

	q := newRecordingQueue()
	d := newDispatcher(q, nil, time.Hour)

	require.NoError(t, d.SubmitFirstCheck(context.Background(), "subj-1"))

	task := <-q.tasks
	require.Equal(t, monitor.TaskPoll, task.Kind)
	require.Equal(t, monitor.ModeFirstCheck, task.Mode)
	require.Equal(t, "subj-1", task.SubjectID)
}

func TestTriggerScan(t *testing.T) {
	t.Parallel()

	q := newRecordingQueue()
	d := newDispatcher(q, nil, time.Hour)

	require.NoError(t, d.TriggerScan(context.Background()))
	task := <-q.tasks
	require.Equal(t, monitor.TaskScan, task.Kind)
}

func TestTrigger_ForwardsQueueErrors(t *testing.T) {
	t.Parallel()

	d := newDispatcher(&errorQueue{err: errors.New("boom")}, nil, time.Hour)

	err := d.TriggerScan(context.Background())
	require.EqualError(t, err, "enqueue scan task: boom")
}

func TestRun_StartsWorkersAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := newRecordingQueue()
	w := worker.New(q, nil, nil, nil, nil, nil, nil, nil, nil,
		fixedClock{time.Now()}, uuid.New(), monitor.NewRetryPolicy(1, time.Millisecond, time.Millisecond),
		worker.Config{}, zap.NewNop())
	d := newDispatcher(q, []*worker.Worker{w}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	// The immediate first cycle lands before any tick.
	for _, want := range []monitor.TaskKind{monitor.TaskExpire, monitor.TaskSelect, monitor.TaskScan} {
		select {
		case task := <-q.tasks:
			require.Equal(t, want, task.Kind)
		case <-time.After(time.Second):
			t.Fatal("initial cycle was not submitted")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestRun_TicksSubmitCycles(t *testing.T) {
	t.Parallel()

	q := newRecordingQueue()
	d := newDispatcher(q, nil, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Initial cycle plus at least one ticked cycle.
	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < 6 {
		select {
		case <-q.tasks:
			seen++
		case <-deadline:
			t.Fatalf("expected two cycles, saw %d tasks", seen)
		}
	}
}
