// Package redis persists entity store snapshots as a Redis hash keyed by
// bucket name and announces each save on a pub/sub channel.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"slmcontrol/pkg/domain"
)

var _ domain.SnapshotBackend = (*Store)(nil)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "slmcontrol"

// Store is a Redis-backed snapshot backend. The state hash lives at
// {prefix}:state, the save counter at {prefix}:revision and save events are
// published to {prefix}:snapshot_events.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// NewStore creates a store for the given connection options.
func NewStore(opts *redis.Options, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: redis.NewClient(opts), prefix: prefix}
}

// StateKey returns the hash key holding bucket payloads.
func (s *Store) StateKey() string { return s.prefix + ":state" }

// RevisionKey returns the counter incremented by every save.
func (s *Store) RevisionKey() string { return s.prefix + ":revision" }

// EventsChannel returns the channel receiving the revision after each save.
func (s *Store) EventsChannel() string { return s.prefix + ":snapshot_events" }

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load reads the state hash. A missing hash yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.StateKey()).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to read state: %w", err)
	}
	payloads := make(map[string][]byte, len(fields))
	for bucket, payload := range fields {
		payloads[bucket] = []byte(payload)
	}
	return domain.DecodeBuckets(payloads)
}

// Save writes every bucket and bumps the revision atomically, then publishes
// the new revision.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	payloads, err := domain.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	hash := make(map[string]any, len(payloads))
	for bucket, payload := range payloads {
		hash[bucket] = payload
	}
	var revision *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.StateKey(), hash)
		revision = pipe.Incr(ctx, s.RevisionKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.EventsChannel(), strconv.FormatInt(revision.Val(), 10)).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot event: %w", err)
	}
	return nil
}

// Revision returns the number of completed saves.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	n, err := s.rdb.Get(ctx, s.RevisionKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Subscribe returns a subscription to save events.
func (s *Store) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, s.EventsChannel())
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
