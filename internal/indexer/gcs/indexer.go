// Package gcs archives ingested publications to a Google Cloud Storage
// bucket as JSON objects.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Indexer writes one object per publication so the raw diary text
// survives independently of the relational store.
type Indexer struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed indexer.
func New(client *storage.Client, cfg Config) (*Indexer, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Indexer{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Submit marshals the publication and uploads it under
// <prefix>/<subject_id>/<publication_id>.json.
func (i *Indexer) Submit(ctx context.Context, pub monitor.Publication) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("marshal publication: %w", err)
	}
	name := path.Join(i.prefix, pub.SubjectID, pub.ID+".json")
	writer := i.client.Bucket(i.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
