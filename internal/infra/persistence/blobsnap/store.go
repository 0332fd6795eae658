// Package blobsnap stores the whole entity graph as one JSON document in a
// blob store (filesystem, S3 or memory).
package blobsnap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"slmcontrol/internal/infra/blob/core"
	"slmcontrol/pkg/domain"
)

var _ domain.SnapshotBackend = (*Store)(nil)

// DefaultKey names the scene document when none is configured.
const DefaultKey = "scene.json"

const contentType = "application/json"

// Store is a snapshot backend over a core.Store.
type Store struct {
	blobs   core.Store
	key     string
	history int
	nowFn   func() time.Time
	seq     atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithHistory keeps a copy of the last n saved documents under HistoryPrefix.
// Zero disables history.
func WithHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithNowFunc overrides the clock used to name history copies.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New wraps blobs, storing the scene under key.
func New(blobs core.Store, key string, opts ...Option) *Store {
	if key == "" {
		key = DefaultKey
	}
	s := &Store{blobs: blobs, key: key, nowFn: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the object key of the scene document.
func (s *Store) Key() string { return s.key }

// HistoryPrefix is the key prefix of the retained history copies.
func (s *Store) HistoryPrefix() string { return s.key + ".history/" }

// Load fetches and decodes the scene document. A missing document yields an
// empty snapshot; any other lookup failure is an error.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	if _, err := s.blobs.Head(ctx, s.key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return domain.NewSnapshot(), nil
		}
		return domain.Snapshot{}, fmt.Errorf("head %s: %w", s.key, err)
	}
	_, rc, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get %s: %w", s.key, err)
	}
	defer func() { _ = rc.Close() }()
	var snapshot domain.Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return snapshot, nil
}

// Save encodes snapshot and replaces the scene document. With history
// enabled it also writes a timestamped copy and prunes the oldest ones.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	opts := core.PutOptions{ContentType: contentType, Metadata: map[string]string{"format": "slm-snapshot"}}
	if _, err := s.blobs.Put(ctx, s.key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("put %s: %w", s.key, err)
	}
	if s.history == 0 {
		return nil
	}
	copyKey := fmt.Sprintf("%s%s-%06d.json", s.HistoryPrefix(), s.nowFn().UTC().Format("20060102T150405.000000000Z"), s.seq.Add(1))
	if _, err := s.blobs.Put(ctx, copyKey, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("put %s: %w", copyKey, err)
	}
	return s.prune(ctx)
}

// History lists the retained copies, oldest first.
func (s *Store) History(ctx context.Context) ([]core.Info, error) {
	infos, err := s.blobs.List(ctx, s.HistoryPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.HistoryPrefix(), err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

// prune deletes history copies beyond the configured depth.
func (s *Store) prune(ctx context.Context) error {
	infos, err := s.History(ctx)
	if err != nil {
		return err
	}
	for len(infos) > s.history {
		if _, err := s.blobs.Delete(ctx, infos[0].Key); err != nil {
			return fmt.Errorf("delete %s: %w", infos[0].Key, err)
		}
		infos = infos[1:]
	}
	return nil
}

// Close is a no-op; blob stores hold no long-lived handles.
func (s *Store) Close() error { return nil }
