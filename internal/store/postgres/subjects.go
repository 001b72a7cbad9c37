package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// SubjectStore implements monitor.SubjectStore on Postgres.
type SubjectStore struct {
	db  Pool
	ids monitor.IDGenerator
}

// NewSubjectStore constructs a SubjectStore over an existing pool.
func NewSubjectStore(db Pool, ids monitor.IDGenerator) (*SubjectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &SubjectStore{db: db, ids: ids}, nil
}

const subjectColumns = `id, name, tax_id, court_filter, interval_hours, active,
	last_check_at, next_check_at, expires_at, created_at, updated_at`

func scanSubject(row pgx.Row) (monitor.Subject, error) {
	var s monitor.Subject
	err := row.Scan(
		&s.ID, &s.Name, &s.TaxID, &s.CourtFilter, &s.IntervalHours, &s.Active,
		&s.LastCheckAt, &s.NextCheckAt, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

const registerSQL = `
INSERT INTO subjects (id, name, tax_id, court_filter, interval_hours, active,
	next_check_at, expires_at, created_at, updated_at, claimed_until)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $6, $6, $9)
ON CONFLICT ((lower(name))) DO UPDATE SET
	active = TRUE,
	next_check_at = EXCLUDED.next_check_at,
	tax_id = COALESCE(NULLIF(EXCLUDED.tax_id, ''), subjects.tax_id),
	court_filter = COALESCE(NULLIF(EXCLUDED.court_filter, ''), subjects.court_filter),
	interval_hours = CASE WHEN $8 THEN EXCLUDED.interval_hours ELSE subjects.interval_hours END,
	expires_at = COALESCE(EXCLUDED.expires_at, subjects.expires_at),
	updated_at = EXCLUDED.updated_at
RETURNING ` + subjectColumns + `, (xmax = 0) AS inserted`

// Register upserts by case-insensitive name: a new row is created, an
// existing one (active or not) is reactivated with a fresh next_check_at.
func (s *SubjectStore) Register(ctx context.Context, reg monitor.Registration, now time.Time) (monitor.Subject, bool, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return monitor.Subject{}, false, fmt.Errorf("generate subject id: %w", err)
	}
	intervalProvided := reg.IntervalHours > 0
	interval := reg.IntervalHours
	if !intervalProvided {
		interval = 24
	}

	row := s.db.QueryRow(ctx, registerSQL,
		id, reg.Name, reg.TaxID, reg.CourtFilter, interval, now, reg.ExpiresAt, intervalProvided,
		now.Add(monitor.RegistrationGrace),
	)
	var subject monitor.Subject
	var inserted bool
	err = row.Scan(
		&subject.ID, &subject.Name, &subject.TaxID, &subject.CourtFilter,
		&subject.IntervalHours, &subject.Active, &subject.LastCheckAt,
		&subject.NextCheckAt, &subject.ExpiresAt, &subject.CreatedAt,
		&subject.UpdatedAt, &inserted,
	)
	if err != nil {
		return monitor.Subject{}, false, fmt.Errorf("register subject: %w", err)
	}
	return subject, inserted, nil
}

func (s *SubjectStore) Get(ctx context.Context, id string) (monitor.Subject, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	subject, err := scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Subject{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Subject{}, fmt.Errorf("get subject: %w", err)
	}
	return subject, nil
}

func (s *SubjectStore) List(ctx context.Context, activeOnly bool) ([]monitor.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects ORDER BY created_at`
	if activeOnly {
		query = `SELECT ` + subjectColumns + ` FROM subjects WHERE active ORDER BY created_at`
	}
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []monitor.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

const selectEligibleSQL = `
UPDATE subjects SET claimed_until = $3
WHERE id IN (
	SELECT id FROM subjects
	WHERE active
		AND next_check_at <= $1
		AND (claimed_until IS NULL OR claimed_until <= $1)
	ORDER BY next_check_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + subjectColumns

// SelectEligible atomically claims due subjects. SKIP LOCKED keeps
// concurrent selections from handing out the same subject, and the
// claimed_until lease covers the span between claim and CompleteCheck so
// a second cycle firing mid-poll sees nothing to do.
func (s *SubjectStore) SelectEligible(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]monitor.Subject, error) {
	rows, err := s.db.Query(ctx, selectEligibleSQL, now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("select eligible subjects: %w", err)
	}
	defer rows.Close()

	var out []monitor.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed subject: %w", err)
		}
		out = append(out, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed subjects: %w", err)
	}
	return out, nil
}

const completeCheckSQL = `
UPDATE subjects SET
	last_check_at = $2,
	next_check_at = $2 + make_interval(hours => interval_hours),
	claimed_until = NULL,
	updated_at = $2
WHERE id = $1`

func (s *SubjectStore) CompleteCheck(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx, completeCheckSQL, id, now)
	if err != nil {
		return fmt.Errorf("complete check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (s *SubjectStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subjects SET active = FALSE, claimed_until = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

func (s *SubjectStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE subjects SET active = FALSE, claimed_until = NULL, updated_at = $1
WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale subjects: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
