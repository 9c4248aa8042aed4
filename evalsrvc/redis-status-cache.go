package evalsrvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStatusCache decorates an EvalRepo with a fast status lookup.
// The polling endpoint hits GetStatus far more often than Get, so the
// status alone is kept in Redis with a short TTL. Writes go to the
// backing repo first; the cache is best-effort.
type RedisStatusCache struct {
	inner EvalRepo
	rdb   *redis.Client
	ttl   time.Duration
}

func NewRedisStatusCache(inner EvalRepo, rdb *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{
		inner: inner,
		rdb:   rdb,
		ttl:   5 * time.Minute,
	}
}

func statusKey(taskID string) string {
	return "eval:status:" + taskID
}

func (c *RedisStatusCache) Save(ctx context.Context, rec Evaluation) error {
	if err := c.inner.Save(ctx, rec); err != nil {
		return err
	}
	c.rdb.Set(ctx, statusKey(rec.TaskID), rec.Status, c.ttl)
	return nil
}

func (c *RedisStatusCache) Get(ctx context.Context, taskID string) (Evaluation, error) {
	return c.inner.Get(ctx, taskID)
}

func (c *RedisStatusCache) GetStatus(ctx context.Context, taskID string) (string, error) {
	status, err := c.rdb.Get(ctx, statusKey(taskID)).Result()
	if err == nil && status != "" {
		return status, nil
	}

	// cache miss or cache trouble, either way the backing repo decides
	status, err = c.inner.GetStatus(ctx, taskID)
	if err != nil {
		return "", err
	}
	c.rdb.Set(ctx, statusKey(taskID), status, c.ttl)
	return status, nil
}

func (c *RedisStatusCache) BeginRun(ctx context.Context, taskID string, attemptID uuid.UUID) (Evaluation, bool, error) {
	rec, claimed, err := c.inner.BeginRun(ctx, taskID, attemptID)
	if err != nil {
		return rec, claimed, err
	}
	c.rdb.Set(ctx, statusKey(rec.TaskID), rec.Status, c.ttl)
	return rec, claimed, nil
}
