package monitor

import (
	"context"
	"time"
)

// FeedClient queries the external judicial-diary search service.
// Pages are 1-based; an empty result slice signals the end of pagination.
type FeedClient interface {
	Search(ctx context.Context, name string, court string, page int) ([]FeedRecord, error)
}

// SubjectStore is the registry of monitored subjects.
type SubjectStore interface {
	// Register upserts a subject by name, reactivating it if inactive.
	// It reports whether the subject was newly created.
	Register(ctx context.Context, reg Registration, now time.Time) (Subject, bool, error)
	Get(ctx context.Context, id string) (Subject, error)
	List(ctx context.Context, activeOnly bool) ([]Subject, error)
	// SelectEligible atomically claims up to limit active subjects whose
	// next_check_at has passed, ordered by next_check_at ascending. A
	// claimed subject is not handed out again until its lease lapses or
	// CompleteCheck releases it.
	SelectEligible(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Subject, error)
	// CompleteCheck records a finished poll: last_check_at=now,
	// next_check_at=now+interval, claim released.
	CompleteCheck(ctx context.Context, id string, now time.Time) error
	Deactivate(ctx context.Context, id string) error
	// ExpireStale deactivates subjects whose expires_at has passed and
	// returns how many were deactivated.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// PublicationStore is the content-addressable publication gateway.
type PublicationStore interface {
	// Insert persists a publication if its content hash is unseen.
	// A duplicate hash is absorbed silently: inserted=false, no error.
	Insert(ctx context.Context, pub Publication) (Publication, bool, error)
	// ListRecent returns publications of active subjects created at or
	// after since, newest first, capped at limit.
	ListRecent(ctx context.Context, since time.Time, limit int) ([]Publication, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]Publication, error)
}

// AlertStore persists alert rows.
type AlertStore interface {
	// Create inserts an alert unless one already exists for the same
	// (publication, kind). It reports whether a row was written.
	Create(ctx context.Context, alert Alert) (bool, error)
	List(ctx context.Context, subjectID string, unreadOnly bool, limit int) ([]Alert, error)
	MarkRead(ctx context.Context, ids []string) (int, error)
	CountUnread(ctx context.Context) (int, error)
}

// StatsStore aggregates counters for the status endpoint.
type StatsStore interface {
	Stats(ctx context.Context) (Status, error)
}

// Queue provides enqueue/dequeue semantics for monitor tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Depth() int
}

// Indexer forwards persisted publications to the semantic indexing
// subsystem. Submission is fire-and-forget: failures are logged by the
// caller and never affect poll outcome.
type Indexer interface {
	Submit(ctx context.Context, pub Publication) error
}

// RateLimiter bounds aggregate outbound request rate to the feed.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Scanner runs the opportunity scan and returns how many new alerts it
// created. The periodic cycle and the on-demand endpoint both call this.
type Scanner interface {
	Scan(ctx context.Context) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row and task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
