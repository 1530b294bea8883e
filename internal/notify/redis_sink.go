package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 24 * time.Hour
)

// statusWriter is the subset of redis.Cmdable the sink needs.
type statusWriter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSink mirrors job changes into redis hashes so other processes can poll them.
type RedisSink struct {
	client statusWriter
	logger *slog.Logger
}

func NewRedisSink(client statusWriter, logger *slog.Logger) *RedisSink {
	return &RedisSink{client: client, logger: logger}
}

// StatusKey is the hash key holding the mirrored fields of a job.
func StatusKey(jobID string) string {
	return statusKeyPrefix + jobID
}

// Run consumes events until ctx is done or the subscription closes.
func (s *RedisSink) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Write(ctx, ev); err != nil {
				s.logger.Warn("Failed to mirror job status",
					slog.String("job_id", ev.JobID),
					slog.Any("error", err),
				)
			}
		}
	}
}

// Write applies one event to the job's hash.
func (s *RedisSink) Write(ctx context.Context, ev Event) error {
	key := StatusKey(ev.JobID)

	if ev.Type == EventJobDeleted {
		return s.client.Del(ctx, key).Err()
	}
	if len(ev.Changes) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(ev.Changes)*2+4)
	for field, v := range ev.Changes {
		encoded, err := encodeField(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		values = append(values, field, encoded)
	}
	values = append(values, "seq", ev.Seq)
	if ev.MediaID != "" {
		values = append(values, "mediaId", ev.MediaID)
	}

	if err := s.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return s.client.Expire(ctx, key, statusTTL).Err()
}

func encodeField(v any) (string, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
