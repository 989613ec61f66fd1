// Package gcs implements a Google Cloud Storage snapshot store.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// SnapshotStore writes page snapshots into a GCS bucket.
type SnapshotStore struct {
	client *storage.Client
	bucket string
}

// New initializes a GCS client and verifies the bucket is reachable, so bad
// configuration fails at startup instead of mid-run. Authentication uses
// Application Default Credentials.
func New(ctx context.Context, bucket string) (*SnapshotStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stat GCS bucket %q: %w", bucket, err)
	}
	return &SnapshotStore{client: client, bucket: bucket}, nil
}

// Put uploads data to the bucket and returns the gs:// URI.
func (s *SnapshotStore) Put(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write GCS object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize GCS object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
