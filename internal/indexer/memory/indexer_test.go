package memory

import (
	"context"
	"testing"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

func TestIndexerRecordsSubmissions(t *testing.T) {
	t.Parallel()

	idx := New()
	err := idx.Submit(context.Background(), monitor.Publication{ID: "p1", ContentHash: "h1"})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	err = idx.Submit(context.Background(), monitor.Publication{ID: "p2", ContentHash: "h2"})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	subs := idx.Submitted()
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	if subs[0].ID != "p1" || subs[1].ID != "p2" {
		t.Fatalf("submissions not recorded in order: %+v", subs)
	}

	subs[0].ID = "modified"
	if idx.Submitted()[0].ID == "modified" {
		t.Fatal("expected Submitted() to return a copy")
	}
}
