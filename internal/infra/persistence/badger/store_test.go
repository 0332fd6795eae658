package badger

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slmcontrol/pkg/domain"
	"slmcontrol/testutil"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestLoadEmpty(t *testing.T) {
	store := openInMemory(t)
	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Patterns)
	assert.NotNil(t, snapshot.Extra)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openInMemory(t)
	want := testutil.SceneSnapshot()
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	testutil.AssertSnapshotsEquivalent(t, want, got)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "scene.badger")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := Open(Config{Path: dir, SyncWrites: true, Logger: logger})
	require.NoError(t, err)
	want := testutil.SceneSnapshot()
	require.NoError(t, store.Save(ctx, want))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	testutil.AssertSnapshotsEquivalent(t, want, got)
	assert.NotEmpty(t, logs.String(), "badger logs should flow through slog")
}

func TestLoadCorruptBucket(t *testing.T) {
	store := openInMemory(t)
	require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+domain.BucketViews), []byte("[1,2"))
	}))
	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode views")
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	store := openInMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.Save(ctx, domain.NewSnapshot()), context.Canceled)
}
