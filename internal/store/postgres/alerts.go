package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// AlertStore implements monitor.AlertStore on Postgres.
type AlertStore struct {
	db Pool
}

// NewAlertStore constructs an AlertStore over an existing pool.
func NewAlertStore(db Pool) (*AlertStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AlertStore{db: db}, nil
}

const insertAlertSQL = `
INSERT INTO alerts (id, subject_id, publication_id, kind, title, description, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
ON CONFLICT (publication_id, kind) DO NOTHING`

// Create inserts the alert unless one already exists for the same
// (publication, kind). The conflict path is the idempotence guarantee the
// scanner and the poll worker rely on.
func (s *AlertStore) Create(ctx context.Context, alert monitor.Alert) (bool, error) {
	tag, err := s.db.Exec(ctx, insertAlertSQL,
		alert.ID, alert.SubjectID, alert.PublicationID, alert.Kind,
		alert.Title, alert.Description, alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listAlertsSQL = `
SELECT id, subject_id, publication_id, kind, title, description, read, created_at
FROM alerts
WHERE ($1 = '' OR subject_id::text = $1)
	AND (NOT $2 OR NOT read)
ORDER BY created_at DESC
LIMIT $3`

func (s *AlertStore) List(ctx context.Context, subjectID string, unreadOnly bool, limit int) ([]monitor.Alert, error) {
	rows, err := s.db.Query(ctx, listAlertsSQL, subjectID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func scanAlert(row pgx.Row) (monitor.Alert, error) {
	var a monitor.Alert
	err := row.Scan(
		&a.ID, &a.SubjectID, &a.PublicationID, &a.Kind,
		&a.Title, &a.Description, &a.Read, &a.CreatedAt,
	)
	return a, err
}

func (s *AlertStore) MarkRead(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE alerts SET read = TRUE WHERE id = ANY($1) AND NOT read`, ids)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *AlertStore) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM alerts WHERE NOT read`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread alerts: %w", err)
	}
	return count, nil
}
