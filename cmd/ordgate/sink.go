//go:build !gcp

package main

import (
	"context"

	"github.com/ordgate/core/pkg/config"
	"github.com/ordgate/core/pkg/export"
)

// newPackSink selects the evidence pack sink for this build. Default builds
// upload to S3 (or an S3-compatible endpoint).
func newPackSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	return export.NewS3Sink(ctx, export.S3SinkConfig{
		Bucket:   cfg.ExportBucket,
		Region:   cfg.ExportRegion,
		Endpoint: cfg.S3Endpoint,
		Prefix:   cfg.ExportPrefix,
	})
}
