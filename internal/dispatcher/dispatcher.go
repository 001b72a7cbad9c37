// Package dispatcher runs the periodic cycle and fans work out to the
// worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
	"github.com/lexwatch/dje-monitor/internal/worker"
)

// Config controls the cycle cadence.
type Config struct {
	CyclePeriod time.Duration
}

// Dispatcher owns the cycle ticker and the worker pool. Each tick submits
// one expire, one select, and one scan task; workers pull them from the
// shared queue. The API reuses the same submission paths for on-demand
// triggers so both entry points behave identically.
type Dispatcher struct {
	queue   monitor.Queue
	workers []*worker.Worker
	clock   monitor.Clock
	ids     monitor.IDGenerator
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue monitor.Queue,
	workers []*worker.Worker,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 30 * time.Minute
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		clock:   clock,
		ids:     ids,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run starts the worker pool and the cycle ticker, blocking until the
// context finishes. The first cycle fires immediately.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}

	if err := d.TriggerCycle(ctx); err != nil {
		d.logger.Error("initial cycle submission failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.cfg.CyclePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			if err := d.TriggerCycle(ctx); err != nil {
				d.logger.Error("cycle submission failed", zap.Error(err))
			}
		}
	}
}

// TriggerCycle submits one full maintenance-select-scan cycle.
func (d *Dispatcher) TriggerCycle(ctx context.Context) error {
	for _, kind := range []monitor.TaskKind{monitor.TaskExpire, monitor.TaskSelect, monitor.TaskScan} {
		if err := d.submit(ctx, monitor.Task{Kind: kind}); err != nil {
			return err
		}
	}
	metrics.ObserveCycle()
	d.logger.Info("cycle submitted", zap.Int("queue_depth", d.queue.Depth()))
	return nil
}

// TriggerScan submits a standalone opportunity scan.
func (d *Dispatcher) TriggerScan(ctx context.Context) error {
	return d.submit(ctx, monitor.Task{Kind: monitor.TaskScan})
}

// TriggerExpire submits a standalone expiration sweep.
func (d *Dispatcher) TriggerExpire(ctx context.Context) error {
	return d.submit(ctx, monitor.Task{Kind: monitor.TaskExpire})
}

// SubmitFirstCheck enqueues the one-time baseline poll for a newly
// registered subject.
func (d *Dispatcher) SubmitFirstCheck(ctx context.Context, subjectID string) error {
	return d.submit(ctx, monitor.Task{
		Kind:      monitor.TaskPoll,
		SubjectID: subjectID,
		Mode:      monitor.ModeFirstCheck,
	})
}

func (d *Dispatcher) submit(ctx context.Context, task monitor.Task) error {
	id, err := d.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate task id: %w", err)
	}
	task.ID = id
	task.Submitted = d.clock.Now().Unix()
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	metrics.SetQueueDepth(d.queue.Depth())
	return nil
}
