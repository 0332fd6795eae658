package blobsnap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"slmcontrol/internal/infra/blob/core"
	"slmcontrol/internal/infra/blob/fs"
	"slmcontrol/internal/infra/blob/memory"
	"slmcontrol/internal/infra/blob/s3"
	"slmcontrol/pkg/domain"
	"slmcontrol/testutil"
)

func TestRoundTripAcrossDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	drivers := map[string]core.Store{
		"memory": memory.New(),
		"fs":     fsStore,
		"s3":     s3.NewMockForTests(),
	}
	for name, blobs := range drivers {
		t.Run(name, func(t *testing.T) {
			store := New(blobs, "")
			if store.Key() != DefaultKey {
				t.Fatalf("unexpected key %s", store.Key())
			}
			empty, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load missing document: %v", err)
			}
			if len(empty.Views) != 0 || empty.Extra == nil {
				t.Fatalf("expected empty snapshot, got %+v", empty)
			}

			want := testutil.SceneSnapshot()
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			testutil.AssertSnapshotsEquivalent(t, want, got)

			info, err := blobs.Head(ctx, DefaultKey)
			if err != nil {
				t.Fatalf("head: %v", err)
			}
			if info.ContentType != contentType {
				t.Fatalf("unexpected content type %q", info.ContentType)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	if _, err := blobs.Put(ctx, "custom.json", bytes.NewBufferString(`{"views": 7}`), core.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := New(blobs, "custom.json").Load(ctx); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadKeepsExtraKeys(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	doc := `{"screens":{},"views":{},"patterns":{},"calibration":{"wavelength":1064}}`
	if _, err := blobs.Put(ctx, DefaultKey, bytes.NewBufferString(doc), core.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snapshot, err := New(blobs, DefaultKey).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := snapshot.Extra["calibration"]; !ok {
		t.Fatalf("expected extra key preserved, got %+v", snapshot.Extra)
	}
	var _ domain.SnapshotBackend = New(blobs, "")
}

func TestHistoryKeepsNewestCopies(t *testing.T) {
	ctx := context.Background()
	fsStore, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	drivers := map[string]core.Store{
		"memory": memory.New(),
		"fs":     fsStore,
		"s3":     s3.NewMockForTests(),
	}
	for name, blobs := range drivers {
		t.Run(name, func(t *testing.T) {
			clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			store := New(blobs, "", WithHistory(2), WithNowFunc(func() time.Time {
				clock = clock.Add(time.Second)
				return clock
			}))
			for i := 0; i < 4; i++ {
				snapshot := testutil.SceneSnapshot()
				snapshot.Extra["generation"] = float64(i)
				if err := store.Save(ctx, snapshot); err != nil {
					t.Fatalf("save %d: %v", i, err)
				}
			}
			history, err := store.History(ctx)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(history) != 2 {
				t.Fatalf("expected 2 retained copies, got %d", len(history))
			}
			for _, info := range history {
				if !strings.HasPrefix(info.Key, store.HistoryPrefix()) {
					t.Fatalf("unexpected history key %s", info.Key)
				}
			}
			_, rc, err := blobs.Get(ctx, history[1].Key)
			if err != nil {
				t.Fatalf("get newest copy: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !strings.Contains(string(data), `"generation":3`) {
				t.Fatalf("newest copy is not the last save: %s", data)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Extra["generation"] != float64(3) {
				t.Fatalf("expected last generation, got %v", got.Extra["generation"])
			}
		})
	}
}

func TestHistoryDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	store := New(blobs, "", WithHistory(-3))
	if err := store.Save(ctx, testutil.SceneSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	infos, err := blobs.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != DefaultKey {
		t.Fatalf("expected only the scene document, got %+v", infos)
	}
}

type failingHead struct {
	core.Store
}

var errUnreachable = errors.New("unreachable")

func (failingHead) Head(context.Context, string) (core.Info, error) {
	return core.Info{}, errUnreachable
}

func TestLoadSeparatesMissingFromUnreadable(t *testing.T) {
	ctx := context.Background()
	_, err := New(failingHead{Store: memory.New()}, "").Load(ctx)
	if !errors.Is(err, errUnreachable) {
		t.Fatalf("expected head failure to surface, got %v", err)
	}
}
