// Package memory contains an in-memory indexer for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Indexer records submitted publications for inspection.
type Indexer struct {
	mu        sync.RWMutex
	submitted []monitor.Publication
}

// New returns a memory Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Submit records the publication.
func (i *Indexer) Submit(_ context.Context, pub monitor.Publication) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.submitted = append(i.submitted, pub)
	return nil
}

// Submitted returns the recorded publications.
func (i *Indexer) Submitted() []monitor.Publication {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]monitor.Publication, len(i.submitted))
	copy(out, i.submitted)
	return out
}
