// Package indexer composes publication sinks.
package indexer

import (
	"context"
	"errors"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Fanout submits each publication to every configured sink. All sinks
// are attempted even when an earlier one fails.
type Fanout struct {
	sinks []monitor.Indexer
}

// NewFanout builds a Fanout over the given sinks.
func NewFanout(sinks ...monitor.Indexer) *Fanout {
	return &Fanout{sinks: sinks}
}

// Submit forwards the publication to all sinks and joins any errors.
func (f *Fanout) Submit(ctx context.Context, pub monitor.Publication) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Submit(ctx, pub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
