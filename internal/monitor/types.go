// Package monitor defines core types shared across subsystems.
package monitor

import "time"

// PollMode selects whether a poll may raise alerts.
type PollMode string

// Poll modes carried by poll tasks.
const (
	// ModeRoutine is the periodic poll: new publications raise alerts.
	ModeRoutine PollMode = "ROUTINE"
	// ModeFirstCheck is the one-time baseline ingestion at registration:
	// pre-existing publications are stored silently.
	ModeFirstCheck PollMode = "FIRST_CHECK"
)

// AlertKind classifies an alert row.
type AlertKind string

// Alert kinds persisted in the alert store.
const (
	AlertNewPublication    AlertKind = "NEW_PUBLICATION"
	AlertCreditOpportunity AlertKind = "CREDIT_OPPORTUNITY"
)

// TaskKind identifies a unit of work on the distribution queue.
type TaskKind string

// Task kinds submitted by the cycle dispatcher (and the API).
const (
	// TaskSelect claims eligible subjects and fans out one poll task each.
	TaskSelect TaskKind = "select"
	// TaskPoll polls the feed for a single subject.
	TaskPoll TaskKind = "poll"
	// TaskScan runs the opportunity scanner over recent publications.
	TaskScan TaskKind = "scan"
	// TaskExpire deactivates subjects past their expiration date.
	TaskExpire TaskKind = "expire"
)

// Task is one item on the distribution queue.
type Task struct {
	ID        string
	Kind      TaskKind
	SubjectID string
	Mode      PollMode
	Attempt   int
	Submitted int64
}

// RegistrationGrace is how long a newly created subject stays claimed.
// The first-check poll is submitted directly and ignores claims, so the
// grace keeps a routine cycle from polling the subject first and raising
// alerts on its baseline history. If the first check never runs the claim
// lapses and routine polling takes over.
const RegistrationGrace = 10 * time.Minute

// Subject is a monitored party tracked against the publication feed.
type Subject struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	TaxID         string     `json:"tax_id,omitempty"`
	CourtFilter   string     `json:"court_filter,omitempty"`
	IntervalHours int        `json:"interval_hours"`
	Active        bool       `json:"active"`
	LastCheckAt   *time.Time `json:"last_check_at,omitempty"`
	NextCheckAt   time.Time  `json:"next_check_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Interval returns the subject's polling interval as a duration.
func (s Subject) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// Registration captures the fields accepted when a subject is registered.
type Registration struct {
	Name          string     `json:"name"`
	TaxID         string     `json:"tax_id,omitempty"`
	CourtFilter   string     `json:"court_filter,omitempty"`
	IntervalHours int        `json:"interval_hours,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// FeedRecord is one publication as returned by the external feed.
type FeedRecord struct {
	Court             string `json:"court"`
	ProcessNumber     string `json:"process_number"`
	AvailabilityDate  string `json:"availability_date"`
	Body              string `json:"body"`
	Organ             string `json:"organ"`
	CommunicationType string `json:"communication_type"`
	Link              string `json:"link"`
}

// Publication is a stored, deduplicated feed record bound to a subject.
// Rows are immutable once written; ContentHash is unique across the store.
type Publication struct {
	ID                string    `json:"id"`
	SubjectID         string    `json:"subject_id"`
	Court             string    `json:"court"`
	ProcessNumber     string    `json:"process_number"`
	AvailabilityDate  string    `json:"availability_date"`
	Body              string    `json:"body"`
	Organ             string    `json:"organ"`
	CommunicationType string    `json:"communication_type"`
	Link              string    `json:"link"`
	ContentHash       string    `json:"content_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// Alert is the signal row consumed by downstream notification channels.
// At most one alert exists per (publication, kind).
type Alert struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	PublicationID string    `json:"publication_id"`
	Kind          AlertKind `json:"kind"`
	// Title is a short human-readable headline. For credit-opportunity
	// alerts it carries the matched settlement pattern.
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status summarizes the engine for the operational surface.
type Status struct {
	QueueDepth        int        `json:"queue_depth"`
	ActiveSubjects    int        `json:"active_subjects"`
	TotalPublications int        `json:"total_publications"`
	UnreadAlerts      int        `json:"unread_alerts"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
}
