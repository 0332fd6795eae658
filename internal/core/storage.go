package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"slmcontrol/internal/config"
	"slmcontrol/internal/infra/blob"
	"slmcontrol/internal/infra/persistence/badger"
	"slmcontrol/internal/infra/persistence/blobsnap"
	"slmcontrol/internal/infra/persistence/postgres"
	redisstore "slmcontrol/internal/infra/persistence/redis"
	"slmcontrol/internal/infra/persistence/sqlite"
	"slmcontrol/pkg/domain"
)

// OpenSnapshotBackend selects the backend named by cfg.Driver. The memory
// driver has no backend and returns nil.
func OpenSnapshotBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (domain.SnapshotBackend, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return nil, nil
	case config.DriverSQLite:
		return backendOrNil(sqlite.NewStore(cfg.SQLitePath))
	case config.DriverPostgres:
		return backendOrNil(postgres.NewStore(ctx, cfg.PostgresDSN))
	case config.DriverRedis:
		store := redisstore.NewStore(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Prefix)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return store, nil
	case config.DriverBadger:
		return backendOrNil(badger.Open(badger.Config{
			Path:       cfg.Badger.Path,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: !cfg.Badger.InMemory,
			Logger:     logger,
		}))
	case config.DriverBlob:
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return blobsnap.New(blobs, cfg.Blob.Key, blobsnap.WithHistory(cfg.Blob.History)), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// backendOrNil keeps a failed constructor's typed nil out of the interface.
func backendOrNil[B domain.SnapshotBackend](backend B, err error) (domain.SnapshotBackend, error) {
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// NewMetricsRecorder builds the recorder named by cfg.Backend. Prometheus
// collectors are registered with reg.
func NewMetricsRecorder(cfg config.MetricsConfig, reg prometheus.Registerer) (MetricsRecorder, error) {
	switch cfg.Backend {
	case "", config.MetricsExpvar:
		return NewExpvarMetricsRecorder(cfg.Namespace + "_service_metrics"), nil
	case config.MetricsPrometheus:
		rec, err := NewPrometheusMetricsRecorder(cfg.Namespace, reg)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case config.MetricsNone:
		return noopMetrics{}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %s", cfg.Backend)
	}
}
