//go:build gcp

package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSSink uploads packs to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSSinkConfig holds configuration for GCSSink.
type GCSSinkConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSSink creates a GCS-backed pack sink. Credentials come from ADC.
func NewGCSSink(ctx context.Context, cfg GCSSinkConfig) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads the pack and returns its object name.
func (s *GCSSink) Put(ctx context.Context, pack *Pack) (string, error) {
	name := fmt.Sprintf("%s%s/%s.zip", s.prefix, pack.CompanyID, pack.PackID)

	obj := s.client.Bucket(s.bucket).Object(name)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/zip"
	w.Metadata = map[string]string{"checksum": pack.Checksum}

	if _, err := w.Write(pack.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return name, nil
}

// Close releases the underlying client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
