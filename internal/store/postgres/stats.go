package postgres

import (
	"context"
	"fmt"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// StatsStore aggregates counters across tables for the status endpoint.
type StatsStore struct {
	db Pool
}

// NewStatsStore constructs a StatsStore over an existing pool.
func NewStatsStore(db Pool) (*StatsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &StatsStore{db: db}, nil
}

const statsSQL = `
SELECT
	(SELECT count(*) FROM subjects WHERE active),
	(SELECT count(*) FROM publications),
	(SELECT count(*) FROM alerts WHERE NOT read),
	(SELECT max(last_check_at) FROM subjects)`

// Stats returns engine-wide counters. Queue depth is filled in by the
// caller, which owns the queue.
func (s *StatsStore) Stats(ctx context.Context) (monitor.Status, error) {
	var status monitor.Status
	err := s.db.QueryRow(ctx, statsSQL).Scan(
		&status.ActiveSubjects,
		&status.TotalPublications,
		&status.UnreadAlerts,
		&status.LastSyncAt,
	)
	if err != nil {
		return monitor.Status{}, fmt.Errorf("load stats: %w", err)
	}
	return status, nil
}
