// Package pubsub forwards publications to the semantic indexing pipeline
// over Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Indexer publishes one JSON message per persisted publication. The
// downstream embedding workers consume the topic; this side only hands
// off.
type Indexer struct {
	topic *pubsub.Topic
}

// New creates an Indexer for the provided topic.
func New(topic *pubsub.Topic) *Indexer {
	return &Indexer{topic: topic}
}

// Submit marshals the publication and publishes it, blocking until the
// server acknowledges. Callers treat failures as log-only.
func (i *Indexer) Submit(ctx context.Context, pub monitor.Publication) error {
	if i.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("marshal publication: %w", err)
	}
	result := i.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"subject_id":   pub.SubjectID,
			"content_hash": pub.ContentHash,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish publication: %w", err)
	}
	return nil
}
