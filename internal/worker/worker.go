// Package worker implements the task execution loop.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/fingerprint"
	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Config controls Worker behavior.
type Config struct {
	MaxPages         int
	EligibilityBatch int
	ClaimLease       time.Duration
}

// Worker consumes monitor tasks and executes them. A deployment runs
// several Workers against one shared queue and one shared rate limiter.
type Worker struct {
	queue        monitor.Queue
	subjects     monitor.SubjectStore
	publications monitor.PublicationStore
	alerts       monitor.AlertStore
	feed         monitor.FeedClient
	limiter      monitor.RateLimiter
	hasher       *fingerprint.Hasher
	indexer      monitor.Indexer
	scanner      monitor.Scanner
	clock        monitor.Clock
	ids          monitor.IDGenerator
	retry        *monitor.RetryPolicy
	cfg          Config
	logger       *zap.Logger
}

// New constructs a Worker.
func New(
	queue monitor.Queue,
	subjects monitor.SubjectStore,
	publications monitor.PublicationStore,
	alerts monitor.AlertStore,
	feed monitor.FeedClient,
	limiter monitor.RateLimiter,
	hasher *fingerprint.Hasher,
	indexer monitor.Indexer,
	scanner monitor.Scanner,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	retry *monitor.RetryPolicy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.EligibilityBatch <= 0 {
		cfg.EligibilityBatch = 500
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 10 * time.Minute
	}
	return &Worker{
		queue:        queue,
		subjects:     subjects,
		publications: publications,
		alerts:       alerts,
		feed:         feed,
		limiter:      limiter,
		hasher:       hasher,
		indexer:      indexer,
		scanner:      scanner,
		clock:        clock,
		ids:          ids,
		retry:        retry,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		metrics.SetQueueDepth(w.queue.Depth())
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task monitor.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	switch task.Kind {
	case monitor.TaskSelect:
		if err := w.selectAndFanOut(ctx); err != nil {
			w.logger.Error("eligibility selection failed", zap.Error(err))
		}
	case monitor.TaskPoll:
		w.runWithRetry(ctx, task, func(ctx context.Context) error {
			return w.poll(ctx, task)
		})
	case monitor.TaskScan:
		created, err := w.scanner.Scan(ctx)
		if err != nil {
			w.logger.Error("opportunity scan failed", zap.Error(err))
			return
		}
		w.logger.Info("opportunity scan finished", zap.Int("alerts_created", created))
	case monitor.TaskExpire:
		expired, err := w.subjects.ExpireStale(ctx, w.clock.Now())
		if err != nil {
			w.logger.Error("expiration sweep failed", zap.Error(err))
			return
		}
		if expired > 0 {
			w.logger.Info("expired stale subjects", zap.Int("count", expired))
		}
	default:
		w.logger.Warn("unknown task kind", zap.String("kind", string(task.Kind)))
	}
}

// runWithRetry executes fn, re-running transient failures with jittered
// exponential backoff. A task that exhausts its budget is abandoned; the
// subject's stale next_check_at makes it eligible again next cycle.
func (w *Worker) runWithRetry(ctx context.Context, task monitor.Task, fn func(context.Context) error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return
		}
		if !w.retry.ShouldRetry(err, attempt) {
			break
		}
		delay := w.retry.Backoff(attempt)
		metrics.ObserveTaskRetry(string(task.Kind))
		w.logger.Warn("task failed, retrying",
			zap.String("task_id", task.ID),
			zap.String("subject_id", task.SubjectID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	w.logger.Error("task abandoned",
		zap.String("task_id", task.ID),
		zap.String("subject_id", task.SubjectID),
		zap.Error(err),
	)
	if task.Mode != "" {
		metrics.ObservePoll(string(task.Mode), "abandoned")
	}
}

// selectAndFanOut claims due subjects and enqueues one routine poll task
// per claim.
func (w *Worker) selectAndFanOut(ctx context.Context) error {
	now := w.clock.Now()
	claimed, err := w.subjects.SelectEligible(ctx, now, w.cfg.EligibilityBatch, w.cfg.ClaimLease)
	if err != nil {
		return fmt.Errorf("select eligible subjects: %w", err)
	}
	if len(claimed) == 0 {
		w.logger.Debug("no subjects due")
		return nil
	}
	for _, subject := range claimed {
		taskID, err := w.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate task id: %w", err)
		}
		task := monitor.Task{
			ID:        taskID,
			Kind:      monitor.TaskPoll,
			SubjectID: subject.ID,
			Mode:      monitor.ModeRoutine,
			Submitted: now.Unix(),
		}
		if err := w.queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue poll for subject %s: %w", subject.ID, err)
		}
	}
	metrics.SetQueueDepth(w.queue.Depth())
	w.logger.Info("fanned out polls", zap.Int("subjects", len(claimed)))
	return nil
}

// poll runs one subject's feed check. ROUTINE and FIRST_CHECK share this
// path; the mode only gates alert creation.
func (w *Worker) poll(ctx context.Context, task monitor.Task) error {
	subject, err := w.subjects.Get(ctx, task.SubjectID)
	if err != nil {
		return fmt.Errorf("load subject %s: %w", task.SubjectID, err)
	}
	if !subject.Active {
		w.logger.Debug("skipping inactive subject", zap.String("subject_id", subject.ID))
		return nil
	}

	newCount := 0
	for page := 1; page <= w.cfg.MaxPages; page++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		records, err := w.feed.Search(ctx, subject.Name, subject.CourtFilter, page)
		if err != nil {
			if monitor.IsPermanent(err) {
				// Not worth retrying; advance eligibility so the subject
				// does not hot-loop on a permanently bad query.
				w.logger.Error("feed rejected query",
					zap.String("subject_id", subject.ID),
					zap.Error(err),
				)
				break
			}
			metrics.ObservePoll(string(task.Mode), "error")
			return err
		}
		if len(records) == 0 {
			break
		}
		inserted, err := w.ingestPage(ctx, subject, task.Mode, records)
		if err != nil {
			return err
		}
		newCount += inserted
	}

	now := w.clock.Now()
	if err := w.subjects.CompleteCheck(ctx, subject.ID, now); err != nil {
		return fmt.Errorf("complete check for subject %s: %w", subject.ID, err)
	}
	metrics.ObservePoll(string(task.Mode), "ok")
	w.logger.Info("poll finished",
		zap.String("subject_id", subject.ID),
		zap.String("mode", string(task.Mode)),
		zap.Int("new_publications", newCount),
		zap.Time("next_check_at", now.Add(subject.Interval())),
	)
	return nil
}

// ingestPage deduplicates and persists one page of records in feed order.
func (w *Worker) ingestPage(ctx context.Context, subject monitor.Subject, mode monitor.PollMode, records []monitor.FeedRecord) (int, error) {
	inserted := 0
	for _, rec := range records {
		if !matchesCourt(rec, subject.CourtFilter) {
			continue
		}
		pubID, err := w.ids.NewID()
		if err != nil {
			return inserted, fmt.Errorf("generate publication id: %w", err)
		}
		pub := monitor.Publication{
			ID:                pubID,
			SubjectID:         subject.ID,
			Court:             rec.Court,
			ProcessNumber:     rec.ProcessNumber,
			AvailabilityDate:  rec.AvailabilityDate,
			Body:              rec.Body,
			Organ:             rec.Organ,
			CommunicationType: rec.CommunicationType,
			Link:              rec.Link,
			ContentHash:       w.hasher.Record(rec),
			CreatedAt:         w.clock.Now(),
		}
		stored, fresh, err := w.publications.Insert(ctx, pub)
		if err != nil {
			return inserted, fmt.Errorf("insert publication: %w", err)
		}
		if !fresh {
			continue
		}
		inserted++
		metrics.ObservePublication()

		if mode == monitor.ModeRoutine {
			if err := w.raiseNewPublicationAlert(ctx, subject, stored); err != nil {
				return inserted, err
			}
		}

		// Fire-and-forget: indexing failure never fails the poll.
		if err := w.indexer.Submit(ctx, stored); err != nil {
			w.logger.Warn("indexing submission failed",
				zap.String("publication_id", stored.ID),
				zap.Error(err),
			)
		}
	}
	return inserted, nil
}

func (w *Worker) raiseNewPublicationAlert(ctx context.Context, subject monitor.Subject, pub monitor.Publication) error {
	alertID, err := w.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate alert id: %w", err)
	}
	created, err := w.alerts.Create(ctx, monitor.Alert{
		ID:            alertID,
		SubjectID:     subject.ID,
		PublicationID: pub.ID,
		Kind:          monitor.AlertNewPublication,
		Title:         alertTitle(pub),
		Description:   truncate(pub.Body, 500),
		CreatedAt:     w.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	if created {
		metrics.ObserveAlert(string(monitor.AlertNewPublication))
	}
	return nil
}

func matchesCourt(rec monitor.FeedRecord, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(rec.Court), strings.TrimSpace(filter))
}

func alertTitle(pub monitor.Publication) string {
	kind := pub.CommunicationType
	if kind == "" {
		kind = "COMUNICACAO"
	}
	parts := []string{kind}
	if pub.Court != "" {
		parts = append(parts, pub.Court)
	}
	if pub.ProcessNumber != "" {
		parts = append(parts, pub.ProcessNumber)
	}
	return strings.Join(parts, " ")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
// Diary bodies are Portuguese text, so a plain byte slice would happily
// cut through an accented character and produce invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
