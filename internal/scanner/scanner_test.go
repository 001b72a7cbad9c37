package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/id/uuid"
	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
	storemem "github.com/lexwatch/dje-monitor/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestClassify(t *testing.T) {
	cases := []struct {
		body  string
		label string
		match bool
	}{
		{"Expede-se MANDADO DE LEVANTAMENTO em favor do autor", "mandado de levantamento", true},
		{"Defiro a expedição de alvará para levantamento dos valores", "alvará de levantamento", true},
		{"Expeça-se alvará de pagamento da quantia depositada", "alvará de pagamento", true},
		{"Determino a expedição de precatório requisitório", "expedição de precatório", true},
		{"O precatório aguarda inclusão no orçamento", "precatório", true},
		{"Requisição de pequeno valor autuada", "rpv", true},
		{"Determino expedir RPV em favor da parte", "rpv", true},
		{"Homologação de acordo celebrado entre as partes", "acordo homologado", true},
		{"Determino o desbloqueio dos ativos financeiros", "desbloqueio", true},
		{"Cumpra-se a ordem de pagamento anexa", "ordem de pagamento", true},
		{"Intimação da parte autora para manifestação", "", false},
		{"RPV mencionada sem verbo de expedição", "", false},
	}
	for _, tc := range cases {
		label, ok := Classify(tc.body)
		require.Equal(t, tc.match, ok, "body: %s", tc.body)
		require.Equal(t, tc.label, label, "body: %s", tc.body)
	}
}

func TestClassify_FirstPatternWins(t *testing.T) {
	// Mentions both a mandado and an alvará: the higher-priority rule
	// labels it.
	body := "Expede-se mandado de levantamento e alvará de pagamento"
	label, ok := Classify(body)
	require.True(t, ok)
	require.Equal(t, "mandado de levantamento", label)
}

type scanHarness struct {
	scanner *Scanner
	store   *storemem.Store
	subject monitor.Subject
	now     time.Time
}

func newScanHarness(t *testing.T) *scanHarness {
	t.Helper()
	ids := uuid.New()
	store := storemem.New(ids)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	subject, _, err := store.Register(context.Background(), monitor.Registration{Name: "Maria"}, now)
	require.NoError(t, err)

	s := New(store, store.Alerts(), fixedClock{now}, ids,
		Config{Lookback: 7 * 24 * time.Hour, BatchLimit: 500}, zap.NewNop())
	return &scanHarness{scanner: s, store: store, subject: subject, now: now}
}

func (h *scanHarness) insert(t *testing.T, body string, age time.Duration) monitor.Publication {
	t.Helper()
	pub, fresh, err := h.store.Insert(context.Background(), monitor.Publication{
		SubjectID:   h.subject.ID,
		Body:        body,
		ContentHash: fmt.Sprintf("hash-%s-%d", body, age),
		CreatedAt:   h.now.Add(-age),
	})
	require.NoError(t, err)
	require.True(t, fresh)
	return pub
}

func TestScan_CreatesAlertsForMatchesOnly(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()

	matched := h.insert(t, "Expedição de alvará de levantamento dos valores", time.Hour)
	h.insert(t, "Intimação ordinária sem sinal de pagamento", time.Hour)

	created, err := h.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	alerts, err := h.store.ListAlerts(ctx, h.subject.ID, false, 100)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, monitor.AlertCreditOpportunity, alerts[0].Kind)
	require.Equal(t, "alvará de levantamento", alerts[0].Title)
	require.Equal(t, matched.ID, alerts[0].PublicationID)
}

func TestScan_Idempotent(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()
	h.insert(t, "Determino o desbloqueio dos valores", time.Hour)

	created, err := h.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	// Unchanged publication set: nothing new.
	created, err = h.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Zero(t, created)

	alerts, err := h.store.ListAlerts(ctx, h.subject.ID, false, 100)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestScan_RespectsLookbackWindow(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()

	h.insert(t, "Precatório incluído no orçamento", 10*24*time.Hour)

	created, err := h.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestScan_NewPublicationAlertDoesNotBlockOpportunity(t *testing.T) {
	h := newScanHarness(t)
	ctx := context.Background()

	pub := h.insert(t, "Alvará de pagamento expedido", time.Hour)
	created, err := h.store.Create(ctx, monitor.Alert{
		SubjectID:     h.subject.ID,
		PublicationID: pub.ID,
		Kind:          monitor.AlertNewPublication,
		Title:         "COMUNICACAO",
	})
	require.NoError(t, err)
	require.True(t, created)

	// A NEW_PUBLICATION alert on the same publication is a different
	// kind, so the opportunity alert still lands.
	n, err := h.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
