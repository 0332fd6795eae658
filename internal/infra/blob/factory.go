// Package blob selects a blob store driver from configuration.
package blob

import (
	"context"
	"fmt"

	"slmcontrol/internal/config"
	"slmcontrol/internal/infra/blob/core"
	"slmcontrol/internal/infra/blob/fs"
	"slmcontrol/internal/infra/blob/memory"
	"slmcontrol/internal/infra/blob/s3"
)

// Open constructs the blob store named by cfg.Driver (default fs).
// S3 credentials come from the default AWS chain.
func Open(ctx context.Context, cfg config.BlobConfig) (core.Store, error) {
	driver := core.Driver(cfg.Driver)
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
