package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status of one batch job as seen by progress queries.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Tracker records batch job statuses. Unknown ids are absent from Statuses.
type Tracker interface {
	SetStatus(ctx context.Context, jobID string, status Status) error
	Statuses(ctx context.Context, jobIDs []string) (map[string]Status, error)
}

const (
	statusKeyPrefix = "batch:job:"
	statusTTL       = 24 * time.Hour
)

func statusKey(jobID string) string {
	return statusKeyPrefix + jobID
}

type statusStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// RedisTracker keeps one expiring key per job so API and worker processes share
// status.
type RedisTracker struct {
	rdb statusStore
	ttl time.Duration
}

func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: statusTTL}
}

func (t *RedisTracker) SetStatus(ctx context.Context, jobID string, status Status) error {
	if err := t.rdb.Set(ctx, statusKey(jobID), string(status), t.ttl).Err(); err != nil {
		return fmt.Errorf("set batch status %s: %w", jobID, err)
	}
	return nil
}

func (t *RedisTracker) Statuses(ctx context.Context, jobIDs []string) (map[string]Status, error) {
	out := make(map[string]Status, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		keys[i] = statusKey(id)
	}
	values, err := t.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get batch statuses: %w", err)
	}

	for i, v := range values {
		if s, ok := v.(string); ok {
			out[jobIDs[i]] = Status(s)
		}
	}
	return out, nil
}

// MemoryTracker serves single-process deployments and tests.
type MemoryTracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{statuses: make(map[string]Status)}
}

func (t *MemoryTracker) SetStatus(_ context.Context, jobID string, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[jobID] = status
	return nil
}

func (t *MemoryTracker) Statuses(_ context.Context, jobIDs []string) (map[string]Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Status, len(jobIDs))
	for _, id := range jobIDs {
		if s, ok := t.statuses[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}
