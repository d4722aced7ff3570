//go:build gcp

package main

import (
	"context"

	"github.com/ordgate/core/pkg/config"
	"github.com/ordgate/core/pkg/export"
)

// newPackSink selects the evidence pack sink for this build. GCP builds
// upload to Cloud Storage with ADC credentials.
func newPackSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	return export.NewGCSSink(ctx, export.GCSSinkConfig{
		Bucket: cfg.ExportBucket,
		Prefix: cfg.ExportPrefix,
	})
}
