// Package archive persists completed run summaries to Redis, scoped
// strictly to finished runs: the live scheduling state in
// internal/statemachine is never written here, so a restart still
// starts every run from a clean seed.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corewright/taskrunner/internal/metrics"
)

const (
	keyPrefix  = "taskrunner:run:"
	indexKey   = "taskrunner:runs"
	defaultTTL = 30 * 24 * time.Hour
)

// Archive stores and retrieves completed run summaries. A nil *Archive
// (returned by New when cfg.RedisAddr is empty) is a valid no-op: every
// method becomes a cheap early return, so callers don't need to branch
// on whether archiving is enabled.
type Archive struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at addr/db, or returns (nil, nil) if addr is
// empty — archiving is an optional feature, not a hard dependency.
func New(addr string, db int) (*Archive, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to archive redis: %w", err)
	}

	return &Archive{client: client, ttl: defaultTTL}, nil
}

// Enabled reports whether this archive actually talks to Redis.
func (a *Archive) Enabled() bool {
	return a != nil
}

// Store persists summary under its run ID and appends the ID to the
// recent-runs index, trimmed to the most recent 1000 entries.
func (a *Archive) Store(ctx context.Context, runID string, summary interface{}) error {
	if a == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		metrics.RecordArchiveError("marshal")
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	pipe := a.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+runID, data, a.ttl)
	pipe.LPush(ctx, indexKey, runID)
	pipe.LTrim(ctx, indexKey, 0, 999)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordArchiveError("store")
		return fmt.Errorf("failed to store run summary: %w", err)
	}
	return nil
}

// Get retrieves a previously archived summary by run ID, unmarshaling
// into dest. Returns redis.Nil (wrapped) if the run ID is unknown.
func (a *Archive) Get(ctx context.Context, runID string, dest interface{}) error {
	if a == nil {
		return fmt.Errorf("archive not enabled")
	}

	data, err := a.client.Get(ctx, keyPrefix+runID).Bytes()
	if err != nil {
		metrics.RecordArchiveError("get")
		return fmt.Errorf("failed to get run summary %s: %w", runID, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.RecordArchiveError("unmarshal")
		return fmt.Errorf("failed to unmarshal run summary %s: %w", runID, err)
	}
	return nil
}

// RecentRunIDs returns up to limit of the most recently archived run
// IDs, newest first.
func (a *Archive) RecentRunIDs(ctx context.Context, limit int64) ([]string, error) {
	if a == nil {
		return nil, nil
	}
	ids, err := a.client.LRange(ctx, indexKey, 0, limit-1).Result()
	if err != nil {
		metrics.RecordArchiveError("list")
		return nil, fmt.Errorf("failed to list archived runs: %w", err)
	}
	return ids, nil
}

// Close releases the underlying Redis connection pool.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.client.Close()
}
