package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

func TestRecord_Deterministic(t *testing.T) {
	t.Parallel()

	h := New()
	rec := monitor.FeedRecord{
		Court:            "TJCE",
		ProcessNumber:    "0001234-56.2023.8.06.0001",
		AvailabilityDate: "2026-08-01",
		Body:             "Intimação da parte autora.",
	}
	require.Equal(t, h.Record(rec), h.Record(rec))
	require.Len(t, h.Record(rec), 64)
}

func TestRecord_IgnoresNonIdentityFields(t *testing.T) {
	t.Parallel()

	h := New()
	a := monitor.FeedRecord{
		Court:            "TJSP",
		ProcessNumber:    "0001234-56.2023.8.26.0001",
		AvailabilityDate: "2026-08-01",
		Body:             "Despacho.",
		Organ:            "1ª Vara Cível",
		Link:             "https://comunica.pje.jus.br/a",
	}
	b := a
	b.Organ = "2ª Vara Cível"
	b.CommunicationType = "DESPACHO"
	b.Link = "https://comunica.pje.jus.br/b"

	require.Equal(t, h.Record(a), h.Record(b))
}

func TestRecord_DistinguishesIdentityFields(t *testing.T) {
	t.Parallel()

	h := New()
	base := monitor.FeedRecord{
		Court:            "TJCE",
		ProcessNumber:    "0001234-56.2023.8.06.0001",
		AvailabilityDate: "2026-08-01",
		Body:             "Sentença publicada.",
	}

	mutations := []func(*monitor.FeedRecord){
		func(r *monitor.FeedRecord) { r.Court = "TJSP" },
		func(r *monitor.FeedRecord) { r.ProcessNumber = "9999999-99.2023.8.06.0001" },
		func(r *monitor.FeedRecord) { r.AvailabilityDate = "2026-08-02" },
		func(r *monitor.FeedRecord) { r.Body = "Sentença publicada!" },
	}
	for i, mutate := range mutations {
		rec := base
		mutate(&rec)
		require.NotEqual(t, h.Record(base), h.Record(rec), "mutation %d", i)
	}
}

func TestRecord_FieldBoundaries(t *testing.T) {
	t.Parallel()

	h := New()
	a := monitor.FeedRecord{Court: "AB", ProcessNumber: "C"}
	b := monitor.FeedRecord{Court: "A", ProcessNumber: "BC"}
	require.NotEqual(t, h.Record(a), h.Record(b))
}

func TestRecord_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	h := New()
	a := monitor.FeedRecord{Court: "TJCE", Body: "texto"}
	b := monitor.FeedRecord{Court: " TJCE ", Body: "texto\n"}
	require.Equal(t, h.Record(a), h.Record(b))
}
