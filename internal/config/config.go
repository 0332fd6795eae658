// Package config loads slmcontrol settings from a YAML file overlaid by
// SLMCONTROL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers selectable through storage.driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
	DriverBlob     = "blob"
)

// Blob drivers selectable through storage.blob.driver.
const (
	BlobDriverFS     = "fs"
	BlobDriverS3     = "s3"
	BlobDriverMemory = "memory"
)

// Metrics backends selectable through metrics.backend.
const (
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
	MetricsNone       = "none"
)

// Config is the top-level slmcontrol.yml document.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig toggles the entity store's strict modes.
type StoreConfig struct {
	StrictValidation bool `yaml:"strict_validation"`
	StrictReferences bool `yaml:"strict_references"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver      string       `yaml:"driver"`
	Autosave    bool         `yaml:"autosave"`
	SQLitePath  string       `yaml:"sqlite_path,omitempty"`
	PostgresDSN string       `yaml:"postgres_dsn,omitempty"`
	Redis       RedisConfig  `yaml:"redis,omitempty"`
	Badger      BadgerConfig `yaml:"badger,omitempty"`
	Blob        BlobConfig   `yaml:"blob,omitempty"`
}

// RedisConfig addresses the redis snapshot backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// BadgerConfig locates the badger snapshot database.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory,omitempty"`
}

// BlobConfig selects the object store holding the scene document.
type BlobConfig struct {
	Driver  string   `yaml:"driver"`
	FSRoot  string   `yaml:"fs_root,omitempty"`
	Key     string   `yaml:"key"`
	History int      `yaml:"history,omitempty"`
	S3      S3Config `yaml:"s3,omitempty"`
}

// S3Config addresses an S3 or MinIO bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig selects the metrics recorder.
type MetricsConfig struct {
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given: an
// in-memory store with permissive modes.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     DriverMemory,
			SQLitePath: "slmcontrol.db",
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "slmcontrol"},
			Badger:     BadgerConfig{Path: "slmcontrol.badger"},
			Blob:       BlobConfig{Driver: BlobDriverFS, FSRoot: "./blobdata", Key: "scene.json"},
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Backend: MetricsExpvar, Namespace: "slmcontrol"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// FromEnv returns the defaults overlaid by the process environment.
func FromEnv() (*Config, error) {
	return Load("")
}

// ApplyEnv overlays SLMCONTROL_* variables read through lookup.
//
//	SLMCONTROL_STRICT_VALIDATION, SLMCONTROL_STRICT_REFERENCES: true|false
//	SLMCONTROL_STORAGE_DRIVER: memory|sqlite|postgres|redis|badger|blob
//	SLMCONTROL_AUTOSAVE: true|false
//	SLMCONTROL_SQLITE_PATH, SLMCONTROL_POSTGRES_DSN
//	SLMCONTROL_REDIS_ADDR, SLMCONTROL_REDIS_PASSWORD, SLMCONTROL_REDIS_DB, SLMCONTROL_REDIS_PREFIX
//	SLMCONTROL_BADGER_PATH, SLMCONTROL_BADGER_IN_MEMORY
//	SLMCONTROL_BLOB_DRIVER, SLMCONTROL_BLOB_FS_ROOT, SLMCONTROL_BLOB_KEY, SLMCONTROL_BLOB_HISTORY
//	SLMCONTROL_BLOB_S3_BUCKET, SLMCONTROL_BLOB_S3_REGION, SLMCONTROL_BLOB_S3_ENDPOINT, SLMCONTROL_BLOB_S3_PATH_STYLE
//	SLMCONTROL_LOG_LEVEL, SLMCONTROL_LOG_FORMAT
//	SLMCONTROL_METRICS_BACKEND, SLMCONTROL_METRICS_NAMESPACE
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SLMCONTROL_STORAGE_DRIVER":    &c.Storage.Driver,
		"SLMCONTROL_SQLITE_PATH":       &c.Storage.SQLitePath,
		"SLMCONTROL_POSTGRES_DSN":      &c.Storage.PostgresDSN,
		"SLMCONTROL_REDIS_ADDR":        &c.Storage.Redis.Addr,
		"SLMCONTROL_REDIS_PASSWORD":    &c.Storage.Redis.Password,
		"SLMCONTROL_REDIS_PREFIX":      &c.Storage.Redis.Prefix,
		"SLMCONTROL_BADGER_PATH":       &c.Storage.Badger.Path,
		"SLMCONTROL_BLOB_DRIVER":       &c.Storage.Blob.Driver,
		"SLMCONTROL_BLOB_FS_ROOT":      &c.Storage.Blob.FSRoot,
		"SLMCONTROL_BLOB_KEY":          &c.Storage.Blob.Key,
		"SLMCONTROL_BLOB_S3_BUCKET":    &c.Storage.Blob.S3.Bucket,
		"SLMCONTROL_BLOB_S3_REGION":    &c.Storage.Blob.S3.Region,
		"SLMCONTROL_BLOB_S3_ENDPOINT":  &c.Storage.Blob.S3.Endpoint,
		"SLMCONTROL_LOG_LEVEL":         &c.Log.Level,
		"SLMCONTROL_LOG_FORMAT":        &c.Log.Format,
		"SLMCONTROL_METRICS_BACKEND":   &c.Metrics.Backend,
		"SLMCONTROL_METRICS_NAMESPACE": &c.Metrics.Namespace,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"SLMCONTROL_STRICT_VALIDATION":  &c.Store.StrictValidation,
		"SLMCONTROL_STRICT_REFERENCES":  &c.Store.StrictReferences,
		"SLMCONTROL_AUTOSAVE":           &c.Storage.Autosave,
		"SLMCONTROL_BADGER_IN_MEMORY":   &c.Storage.Badger.InMemory,
		"SLMCONTROL_BLOB_S3_PATH_STYLE": &c.Storage.Blob.S3.PathStyle,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}
	ints := map[string]*int{
		"SLMCONTROL_REDIS_DB":     &c.Storage.Redis.DB,
		"SLMCONTROL_BLOB_HISTORY": &c.Storage.Blob.History,
	}
	for name, dst := range ints {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks driver names and the settings each driver requires.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path required for driver %s", DriverSQLite)
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn required for driver %s", DriverPostgres)
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr required for driver %s", DriverRedis)
		}
	case DriverBadger:
		if c.Storage.Badger.Path == "" && !c.Storage.Badger.InMemory {
			return fmt.Errorf("storage.badger.path required unless in_memory is set")
		}
	case DriverBlob:
		if err := c.Storage.Blob.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage driver '%s' (valid: memory, sqlite, postgres, redis, badger, blob)", c.Storage.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level '%s'", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format '%s' (valid: text, json)", c.Log.Format)
	}
	switch c.Metrics.Backend {
	case "", MetricsExpvar, MetricsPrometheus, MetricsNone:
	default:
		return fmt.Errorf("unknown metrics backend '%s'", c.Metrics.Backend)
	}
	return nil
}

func (b BlobConfig) validate() error {
	if b.Key == "" {
		return fmt.Errorf("storage.blob.key required")
	}
	if b.History < 0 {
		return fmt.Errorf("storage.blob.history must not be negative")
	}
	switch b.Driver {
	case BlobDriverFS, BlobDriverMemory:
	case BlobDriverS3:
		if b.S3.Bucket == "" {
			return fmt.Errorf("storage.blob.s3.bucket required for blob driver %s", BlobDriverS3)
		}
	default:
		return fmt.Errorf("unknown blob driver '%s' (valid: fs, s3, memory)", b.Driver)
	}
	return nil
}
