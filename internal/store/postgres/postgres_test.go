package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lexwatch/dje-monitor/internal/id/uuid"
	"github.com/lexwatch/dje-monitor/internal/monitor"
)

var subjectCols = []string{
	"id", "name", "tax_id", "court_filter", "interval_hours", "active",
	"last_check_at", "next_check_at", "expires_at", "created_at", "updated_at",
}

var publicationCols = []string{
	"id", "subject_id", "court", "process_number", "availability_date",
	"body", "organ", "communication_type", "link", "content_hash", "created_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRegisterUpsertsByName(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewSubjectStore(mock, uuid.New())
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(append(subjectCols, "inserted")).AddRow(
		"11111111-1111-7111-8111-111111111111", "Maria da Silva", "", "TJCE", 24, true,
		nil, now, nil, now, now, true,
	)

	mock.ExpectQuery("INSERT INTO subjects").
		WithArgs(pgxmock.AnyArg(), "Maria da Silva", "", "TJCE", 24, now, (*time.Time)(nil), false,
			now.Add(monitor.RegistrationGrace)).
		WillReturnRows(rows)

	subject, created, err := store.Register(context.Background(),
		monitor.Registration{Name: "Maria da Silva", CourtFilter: "TJCE"}, now)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "Maria da Silva", subject.Name)
	require.Equal(t, 24, subject.IntervalHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectEligibleClaimsWithLease(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewSubjectStore(mock, uuid.New())
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	lease := 10 * time.Minute
	rows := pgxmock.NewRows(subjectCols).AddRow(
		"11111111-1111-7111-8111-111111111111", "Maria", "", "", 24, true,
		nil, now.Add(-time.Hour), nil, now.Add(-48*time.Hour), now.Add(-time.Hour),
	)

	mock.ExpectQuery("UPDATE subjects SET claimed_until").
		WithArgs(now, 500, now.Add(lease)).
		WillReturnRows(rows)

	claimed, err := store.SelectEligible(context.Background(), now, 500, lease)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "Maria", claimed[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckAdvancesEligibility(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewSubjectStore(mock, uuid.New())
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE subjects SET").
		WithArgs("subj-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.CompleteCheck(context.Background(), "subj-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckUnknownSubject(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewSubjectStore(mock, uuid.New())
	require.NoError(t, err)

	mock.ExpectExec("UPDATE subjects SET").
		WithArgs("missing", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.CompleteCheck(context.Background(), "missing", time.Now().UTC())
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestExpireStaleReturnsCount(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewSubjectStore(mock, uuid.New())
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE subjects SET active = FALSE").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestInsertPublicationFreshRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewPublicationStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	pub := monitor.Publication{
		ID: "22222222-2222-7222-8222-222222222222", SubjectID: "subj-1",
		Court: "TJCE", ProcessNumber: "0001", Body: "texto",
		ContentHash: "hash-1", CreatedAt: now,
	}

	rows := pgxmock.NewRows(publicationCols).AddRow(
		pub.ID, pub.SubjectID, pub.Court, pub.ProcessNumber, "",
		pub.Body, "", "", "", pub.ContentHash, now,
	)
	mock.ExpectQuery("INSERT INTO publications").
		WithArgs(pub.ID, pub.SubjectID, pub.Court, pub.ProcessNumber, "",
			pub.Body, "", "", "", pub.ContentHash, now).
		WillReturnRows(rows)

	stored, inserted, err := store.Insert(context.Background(), pub)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, pub.ID, stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPublicationDuplicateHashAbsorbed(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewPublicationStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	pub := monitor.Publication{ID: "new-id", SubjectID: "subj-1", ContentHash: "hash-1", CreatedAt: now}

	// ON CONFLICT DO NOTHING returns no row for a duplicate.
	mock.ExpectQuery("INSERT INTO publications").
		WithArgs(pub.ID, pub.SubjectID, "", "", "", "", "", "", "", pub.ContentHash, now).
		WillReturnRows(pgxmock.NewRows(publicationCols))

	existing := pgxmock.NewRows(publicationCols).AddRow(
		"original-id", "subj-1", "TJCE", "0001", "",
		"texto", "", "", "", "hash-1", now.Add(-time.Hour),
	)
	mock.ExpectQuery("SELECT .+ FROM publications WHERE content_hash").
		WithArgs("hash-1").
		WillReturnRows(existing)

	stored, inserted, err := store.Insert(context.Background(), pub)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "original-id", stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlertConflictReportsNotCreated(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewAlertStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	alert := monitor.Alert{
		ID: "a1", SubjectID: "s1", PublicationID: "p1",
		Kind: monitor.AlertCreditOpportunity, Title: "precatório", CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(alert.ID, alert.SubjectID, alert.PublicationID, alert.Kind,
			alert.Title, "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := store.Create(context.Background(), alert)
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewAlertStore(mock)
	require.NoError(t, err)

	n, err := store.MarkRead(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsAggregates(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewStatsStore(mock)
	require.NoError(t, err)

	last := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"subjects", "publications", "alerts", "last"}).
		AddRow(5, 120, 3, &last)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	status, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, status.ActiveSubjects)
	require.Equal(t, 120, status.TotalPublications)
	require.Equal(t, 3, status.UnreadAlerts)
	require.Equal(t, last, *status.LastSyncAt)
}
