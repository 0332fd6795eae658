package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// SnapshotBackend persists whole-store snapshots. Implementations store the
// screens, views, patterns and extra buckets as independent JSON payloads.
type SnapshotBackend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Snapshot bucket names shared by every backend.
const (
	BucketScreens  = "screens"
	BucketViews    = "views"
	BucketPatterns = "patterns"
	BucketExtra    = "extra"
)

// SnapshotBuckets lists bucket names in persistence order.
var SnapshotBuckets = []string{BucketScreens, BucketViews, BucketPatterns, BucketExtra}

// BucketTarget returns a pointer into snapshot suitable for json.Unmarshal of
// the named bucket, or nil for an unknown bucket.
func BucketTarget(snapshot *Snapshot, bucket string) any {
	switch bucket {
	case BucketScreens:
		return &snapshot.Screens
	case BucketViews:
		return &snapshot.Views
	case BucketPatterns:
		return &snapshot.Patterns
	case BucketExtra:
		return &snapshot.Extra
	default:
		return nil
	}
}

// BucketValue returns the snapshot collection stored under bucket.
func BucketValue(snapshot Snapshot, bucket string) any {
	switch bucket {
	case BucketScreens:
		return nonNilMap(snapshot.Screens)
	case BucketViews:
		return nonNilMap(snapshot.Views)
	case BucketPatterns:
		return nonNilMap(snapshot.Patterns)
	case BucketExtra:
		if snapshot.Extra == nil {
			return map[string]any{}
		}
		return snapshot.Extra
	default:
		return nil
	}
}

// EncodeBuckets marshals every snapshot bucket to its JSON payload.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(SnapshotBuckets))
	for _, bucket := range SnapshotBuckets {
		data, err := json.Marshal(BucketValue(snapshot, bucket))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Missing or empty
// buckets decode as empty collections and unknown buckets are ignored.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	snapshot := NewSnapshot()
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		target := BucketTarget(&snapshot, bucket)
		if target == nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if snapshot.Screens == nil {
		snapshot.Screens = map[EntityID]*Screen{}
	}
	if snapshot.Views == nil {
		snapshot.Views = map[EntityID]*View{}
	}
	if snapshot.Patterns == nil {
		snapshot.Patterns = map[EntityID]*Pattern{}
	}
	if snapshot.Extra == nil {
		snapshot.Extra = map[string]any{}
	}
	return snapshot, nil
}
