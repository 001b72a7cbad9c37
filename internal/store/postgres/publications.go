package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// PublicationStore implements monitor.PublicationStore on Postgres.
type PublicationStore struct {
	db Pool
}

// NewPublicationStore constructs a PublicationStore over an existing pool.
func NewPublicationStore(db Pool) (*PublicationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PublicationStore{db: db}, nil
}

const publicationColumns = `id, subject_id, court, process_number, availability_date,
	body, organ, communication_type, link, content_hash, created_at`

func scanPublication(row pgx.Row) (monitor.Publication, error) {
	var p monitor.Publication
	err := row.Scan(
		&p.ID, &p.SubjectID, &p.Court, &p.ProcessNumber, &p.AvailabilityDate,
		&p.Body, &p.Organ, &p.CommunicationType, &p.Link, &p.ContentHash, &p.CreatedAt,
	)
	return p, err
}

const insertPublicationSQL = `
INSERT INTO publications (id, subject_id, court, process_number, availability_date,
	body, organ, communication_type, link, content_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (content_hash) DO NOTHING
RETURNING ` + publicationColumns

// Insert persists the publication unless its content hash already exists.
// Concurrent inserts of the same content race safely: exactly one wins,
// the rest read back the stored row.
func (s *PublicationStore) Insert(ctx context.Context, pub monitor.Publication) (monitor.Publication, bool, error) {
	row := s.db.QueryRow(ctx, insertPublicationSQL,
		pub.ID, pub.SubjectID, pub.Court, pub.ProcessNumber, pub.AvailabilityDate,
		pub.Body, pub.Organ, pub.CommunicationType, pub.Link, pub.ContentHash, pub.CreatedAt,
	)
	stored, err := scanPublication(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return monitor.Publication{}, false, fmt.Errorf("insert publication: %w", err)
	}

	// Conflict: the hash is already stored.
	row = s.db.QueryRow(ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE content_hash = $1`, pub.ContentHash)
	stored, err = scanPublication(row)
	if err != nil {
		return monitor.Publication{}, false, fmt.Errorf("load existing publication: %w", err)
	}
	return stored, false, nil
}

func (s *PublicationStore) ListRecent(ctx context.Context, since time.Time, limit int) ([]monitor.Publication, error) {
	rows, err := s.db.Query(ctx, `
SELECT p.id, p.subject_id, p.court, p.process_number, p.availability_date,
	p.body, p.organ, p.communication_type, p.link, p.content_hash, p.created_at
FROM publications p
JOIN subjects s ON s.id = p.subject_id
WHERE s.active AND p.created_at >= $1
ORDER BY p.created_at DESC
LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent publications: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

func (s *PublicationStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]monitor.Publication, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+publicationColumns+` FROM publications
WHERE subject_id = $1
ORDER BY created_at DESC
LIMIT $2`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list subject publications: %w", err)
	}
	defer rows.Close()
	return collectPublications(rows)
}

func collectPublications(rows pgx.Rows) ([]monitor.Publication, error) {
	var out []monitor.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		out = append(out, pub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return out, nil
}
