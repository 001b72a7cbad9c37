// Package memory provides mutex-guarded map stores for local development
// and tests. They implement the same store contracts as the Postgres
// implementations, including claim leases and conditional inserts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Store holds every collection behind one lock so cross-collection
// operations (stats, cascading reads) stay consistent.
type Store struct {
	mu           sync.Mutex
	ids          monitor.IDGenerator
	subjects     map[string]monitor.Subject
	claims       map[string]time.Time
	publications map[string]monitor.Publication
	hashes       map[string]string
	alerts       map[string]monitor.Alert
	alertKeys    map[string]struct{}
	lastSyncAt   *time.Time
}

// New constructs an empty Store.
func New(ids monitor.IDGenerator) *Store {
	return &Store{
		ids:          ids,
		subjects:     make(map[string]monitor.Subject),
		claims:       make(map[string]time.Time),
		publications: make(map[string]monitor.Publication),
		hashes:       make(map[string]string),
		alerts:       make(map[string]monitor.Alert),
		alertKeys:    make(map[string]struct{}),
	}
}

const defaultIntervalHours = 24

// Register upserts a subject by case-insensitive name.
func (s *Store) Register(_ context.Context, reg monitor.Registration, now time.Time) (monitor.Subject, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(reg.Name))
	for id, existing := range s.subjects {
		if strings.ToLower(existing.Name) != key {
			continue
		}
		existing.Active = true
		existing.NextCheckAt = now
		if reg.IntervalHours > 0 {
			existing.IntervalHours = reg.IntervalHours
		}
		if reg.TaxID != "" {
			existing.TaxID = reg.TaxID
		}
		if reg.CourtFilter != "" {
			existing.CourtFilter = reg.CourtFilter
		}
		if reg.ExpiresAt != nil {
			existing.ExpiresAt = reg.ExpiresAt
		}
		existing.UpdatedAt = now
		s.subjects[id] = existing
		return existing, false, nil
	}

	id, err := s.ids.NewID()
	if err != nil {
		return monitor.Subject{}, false, err
	}
	interval := reg.IntervalHours
	if interval <= 0 {
		interval = defaultIntervalHours
	}
	subject := monitor.Subject{
		ID:            id,
		Name:          strings.TrimSpace(reg.Name),
		TaxID:         reg.TaxID,
		CourtFilter:   reg.CourtFilter,
		IntervalHours: interval,
		Active:        true,
		NextCheckAt:   now,
		ExpiresAt:     reg.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.subjects[id] = subject
	s.claims[id] = now.Add(monitor.RegistrationGrace)
	return subject, true, nil
}

func (s *Store) Get(_ context.Context, id string) (monitor.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.subjects[id]
	if !ok {
		return monitor.Subject{}, monitor.ErrNotFound
	}
	return subject, nil
}

func (s *Store) List(_ context.Context, activeOnly bool) ([]monitor.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]monitor.Subject, 0, len(s.subjects))
	for _, subject := range s.subjects {
		if activeOnly && !subject.Active {
			continue
		}
		out = append(out, subject)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SelectEligible claims up to limit due subjects, oldest next_check_at
// first. Claimed subjects stay invisible until the lease lapses or
// CompleteCheck releases them.
func (s *Store) SelectEligible(_ context.Context, now time.Time, limit int, lease time.Duration) ([]monitor.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]monitor.Subject, 0, limit)
	for id, subject := range s.subjects {
		if !subject.Active || subject.NextCheckAt.After(now) {
			continue
		}
		if until, claimed := s.claims[id]; claimed && until.After(now) {
			continue
		}
		candidates = append(candidates, subject)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextCheckAt.Before(candidates[j].NextCheckAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, subject := range candidates {
		s.claims[subject.ID] = now.Add(lease)
	}
	return candidates, nil
}

func (s *Store) CompleteCheck(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.subjects[id]
	if !ok {
		return monitor.ErrNotFound
	}
	checked := now
	subject.LastCheckAt = &checked
	subject.NextCheckAt = now.Add(subject.Interval())
	subject.UpdatedAt = now
	s.subjects[id] = subject
	delete(s.claims, id)
	s.lastSyncAt = &checked
	return nil
}

func (s *Store) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.subjects[id]
	if !ok {
		return monitor.ErrNotFound
	}
	subject.Active = false
	subject.UpdatedAt = time.Now().UTC()
	s.subjects[id] = subject
	delete(s.claims, id)
	return nil
}

func (s *Store) ExpireStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, subject := range s.subjects {
		if !subject.Active || subject.ExpiresAt == nil || subject.ExpiresAt.After(now) {
			continue
		}
		subject.Active = false
		subject.UpdatedAt = now
		s.subjects[id] = subject
		delete(s.claims, id)
		expired++
	}
	return expired, nil
}

// Insert persists a publication unless its content hash is already known.
func (s *Store) Insert(_ context.Context, pub monitor.Publication) (monitor.Publication, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.hashes[pub.ContentHash]; ok {
		return s.publications[existingID], false, nil
	}
	if pub.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return monitor.Publication{}, false, err
		}
		pub.ID = id
	}
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = time.Now().UTC()
	}
	s.publications[pub.ID] = pub
	s.hashes[pub.ContentHash] = pub.ID
	return pub, true, nil
}

func (s *Store) ListRecent(_ context.Context, since time.Time, limit int) ([]monitor.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]monitor.Publication, 0, limit)
	for _, pub := range s.publications {
		if pub.CreatedAt.Before(since) {
			continue
		}
		if subject, ok := s.subjects[pub.SubjectID]; ok && !subject.Active {
			continue
		}
		out = append(out, pub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListBySubject(_ context.Context, subjectID string, limit int) ([]monitor.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]monitor.Publication, 0, limit)
	for _, pub := range s.publications {
		if pub.SubjectID == subjectID {
			out = append(out, pub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Create inserts an alert unless one exists for the same (publication, kind).
func (s *Store) Create(_ context.Context, alert monitor.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alert.PublicationID + "|" + string(alert.Kind)
	if _, exists := s.alertKeys[key]; exists {
		return false, nil
	}
	if alert.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return false, err
		}
		alert.ID = id
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.alerts[alert.ID] = alert
	s.alertKeys[key] = struct{}{}
	return true, nil
}

func (s *Store) ListAlerts(_ context.Context, subjectID string, unreadOnly bool, limit int) ([]monitor.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]monitor.Alert, 0, limit)
	for _, alert := range s.alerts {
		if subjectID != "" && alert.SubjectID != subjectID {
			continue
		}
		if unreadOnly && alert.Read {
			continue
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, id := range ids {
		alert, ok := s.alerts[id]
		if !ok || alert.Read {
			continue
		}
		alert.Read = true
		s.alerts[id] = alert
		marked++
	}
	return marked, nil
}

func (s *Store) CountUnread(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, alert := range s.alerts {
		if !alert.Read {
			count++
		}
	}
	return count, nil
}

// Stats aggregates counters for the status endpoint. Queue depth is filled
// in by the caller, which owns the queue.
func (s *Store) Stats(context.Context) (monitor.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, subject := range s.subjects {
		if subject.Active {
			active++
		}
	}
	unread := 0
	for _, alert := range s.alerts {
		if !alert.Read {
			unread++
		}
	}
	return monitor.Status{
		ActiveSubjects:    active,
		TotalPublications: len(s.publications),
		UnreadAlerts:      unread,
		LastSyncAt:        s.lastSyncAt,
	}, nil
}

// Alerts returns an AlertStore view of the store.
func (s *Store) Alerts() monitor.AlertStore { return alertView{s} }

type alertView struct{ s *Store }

func (v alertView) Create(ctx context.Context, alert monitor.Alert) (bool, error) {
	return v.s.Create(ctx, alert)
}

func (v alertView) List(ctx context.Context, subjectID string, unreadOnly bool, limit int) ([]monitor.Alert, error) {
	return v.s.ListAlerts(ctx, subjectID, unreadOnly, limit)
}

func (v alertView) MarkRead(ctx context.Context, ids []string) (int, error) {
	return v.s.MarkRead(ctx, ids)
}

func (v alertView) CountUnread(ctx context.Context) (int, error) {
	return v.s.CountUnread(ctx)
}
