package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "slmcontrol.yml")

	validConfig := `store:
  strict_validation: true
storage:
  driver: redis
  autosave: true
  redis:
    addr: "redis:6379"
    prefix: "bench"
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.True(t, cfg.Store.StrictValidation)
	assert.False(t, cfg.Store.StrictReferences)
	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Autosave)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "bench", cfg.Storage.Redis.Prefix)
	assert.Equal(t, "json", cfg.Log.Format)
	// defaults survive for unset sections
	assert.Equal(t, MetricsExpvar, cfg.Metrics.Backend)
	assert.Equal(t, "scene.json", cfg.Storage.Blob.Key)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/slmcontrol.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "slmcontrol.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  - driver\n   bad"), 0o644))

	cfg, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "slmcontrol.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  driver: memory\n"), 0o644))
	t.Setenv("SLMCONTROL_STORAGE_DRIVER", "sqlite")
	t.Setenv("SLMCONTROL_SQLITE_PATH", "/tmp/scene.db")
	t.Setenv("SLMCONTROL_STRICT_REFERENCES", "true")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/scene.db", cfg.Storage.SQLitePath)
	assert.True(t, cfg.Store.StrictReferences)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SLMCONTROL_REDIS_DB":           "3",
		"SLMCONTROL_BLOB_S3_PATH_STYLE": "1",
		"SLMCONTROL_BLOB_S3_BUCKET":     "scenes",
		"SLMCONTROL_BLOB_HISTORY":       "5",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
	assert.True(t, cfg.Storage.Blob.S3.PathStyle)
	assert.Equal(t, "scenes", cfg.Storage.Blob.S3.Bucket)
	assert.Equal(t, 5, cfg.Storage.Blob.History)

	env["SLMCONTROL_BLOB_HISTORY"] = "many"
	err := cfg.ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLMCONTROL_BLOB_HISTORY")
	delete(env, "SLMCONTROL_BLOB_HISTORY")

	env["SLMCONTROL_AUTOSAVE"] = "maybe"
	err = cfg.ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLMCONTROL_AUTOSAVE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, wantErr: "unknown storage driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = DriverPostgres }, wantErr: "postgres_dsn"},
		{name: "badger in memory", mutate: func(c *Config) {
			c.Storage.Driver = DriverBadger
			c.Storage.Badger = BadgerConfig{InMemory: true}
		}},
		{name: "badger without path", mutate: func(c *Config) {
			c.Storage.Driver = DriverBadger
			c.Storage.Badger = BadgerConfig{}
		}, wantErr: "badger.path"},
		{name: "s3 without bucket", mutate: func(c *Config) {
			c.Storage.Driver = DriverBlob
			c.Storage.Blob.Driver = BlobDriverS3
		}, wantErr: "s3.bucket"},
		{name: "blob without key", mutate: func(c *Config) {
			c.Storage.Driver = DriverBlob
			c.Storage.Blob.Key = ""
		}, wantErr: "blob.key"},
		{name: "negative blob history", mutate: func(c *Config) {
			c.Storage.Driver = DriverBlob
			c.Storage.Blob.History = -1
		}, wantErr: "blob.history"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log level"},
		{name: "bad metrics backend", mutate: func(c *Config) { c.Metrics.Backend = "statsd" }, wantErr: "metrics backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
