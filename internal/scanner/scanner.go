// Package scanner detects financial-settlement signals in recent
// publications and raises credit-opportunity alerts.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// rule is one settlement pattern. Rules are evaluated in priority order
// and the first match labels the publication; later rules are not
// consulted.
type rule struct {
	label string
	// anyOf matches when any phrase is present.
	anyOf []string
	// allOf matches when every phrase is present. Checked only when
	// anyOf is empty or did not match.
	allOf []string
}

func (r rule) matches(body string) bool {
	for _, phrase := range r.anyOf {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	if len(r.allOf) == 0 {
		return false
	}
	for _, phrase := range r.allOf {
		if !strings.Contains(body, phrase) {
			return false
		}
	}
	return true
}

// rules mirror the settlement events worth flagging, most specific first
// so "mandado de levantamento" is not swallowed by the broader "alvará"
// rules below it.
var rules = []rule{
	{label: "mandado de levantamento", anyOf: []string{"mandado de levantamento"}},
	{label: "alvará de levantamento", allOf: []string{"alvará", "levantamento"}},
	{label: "alvará de pagamento", allOf: []string{"alvará", "pagamento"}},
	{label: "expedição de precatório", anyOf: []string{"expedição de precatório", "expedir precatório"}},
	{label: "precatório", anyOf: []string{"precatório"}},
	{label: "rpv", anyOf: []string{"requisição de pequeno valor"}, allOf: []string{"rpv", "expedir"}},
	{label: "acordo homologado", anyOf: []string{"homologação de acordo", "acordo homologado"}},
	{label: "desbloqueio", anyOf: []string{"desbloqueio", "levantamento do bloqueio", "bloqueio levantado"}},
	{label: "ordem de pagamento", anyOf: []string{"ordem de pagamento"}},
}

// Classify returns the highest-priority pattern label matching the body,
// or false when no pattern matches. Matching is case-insensitive.
func Classify(body string) (string, bool) {
	lowered := strings.ToLower(body)
	for _, r := range rules {
		if r.matches(lowered) {
			return r.label, true
		}
	}
	return "", false
}

// Config controls the scan window.
type Config struct {
	Lookback   time.Duration
	BatchLimit int
}

// Scanner walks publications created within the lookback window and
// creates one CREDIT_OPPORTUNITY alert per matching publication. Re-runs
// over an unchanged set create nothing, so the periodic cycle and the
// on-demand endpoint can share it freely.
type Scanner struct {
	publications monitor.PublicationStore
	alerts       monitor.AlertStore
	clock        monitor.Clock
	ids          monitor.IDGenerator
	cfg          Config
	logger       *zap.Logger
}

// New constructs a Scanner.
func New(
	publications monitor.PublicationStore,
	alerts monitor.AlertStore,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scanner {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	return &Scanner{
		publications: publications,
		alerts:       alerts,
		clock:        clock,
		ids:          ids,
		cfg:          cfg,
		logger:       logger,
	}
}

// Scan runs one pass and returns how many new alerts were created.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	now := s.clock.Now()
	since := now.Add(-s.cfg.Lookback)
	pubs, err := s.publications.ListRecent(ctx, since, s.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list recent publications: %w", err)
	}

	created := 0
	for _, pub := range pubs {
		label, ok := Classify(pub.Body)
		if !ok {
			continue
		}
		alertID, err := s.ids.NewID()
		if err != nil {
			return created, fmt.Errorf("generate alert id: %w", err)
		}
		fresh, err := s.alerts.Create(ctx, monitor.Alert{
			ID:            alertID,
			SubjectID:     pub.SubjectID,
			PublicationID: pub.ID,
			Kind:          monitor.AlertCreditOpportunity,
			Title:         label,
			Description:   opportunityDescription(pub, label),
			CreatedAt:     now,
		})
		if err != nil {
			return created, fmt.Errorf("create opportunity alert: %w", err)
		}
		if !fresh {
			continue
		}
		created++
		metrics.ObserveAlert(string(monitor.AlertCreditOpportunity))
		s.logger.Info("credit opportunity detected",
			zap.String("publication_id", pub.ID),
			zap.String("subject_id", pub.SubjectID),
			zap.String("pattern", label),
		)
	}
	return created, nil
}

func opportunityDescription(pub monitor.Publication, label string) string {
	parts := []string{fmt.Sprintf("padrão: %s", label)}
	if pub.Court != "" {
		parts = append(parts, pub.Court)
	}
	if pub.ProcessNumber != "" {
		parts = append(parts, pub.ProcessNumber)
	}
	return strings.Join(parts, " | ")
}
