package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edusense/backend/internal/affect"
	redisclient "github.com/edusense/backend/pkg/redis"
)

const readingTTL = 10 * time.Minute

// RedisReadingCache stores the latest smoothed reading per session in Redis
// so session status works across instances. Keys expire on their own; ends
// and evictions delete them eagerly.
type RedisReadingCache struct {
	rdb *redisclient.Client
}

func NewRedisReadingCache(rdb *redisclient.Client) *RedisReadingCache {
	return &RedisReadingCache{rdb: rdb}
}

func readingKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("reading:%s", sessionID.String())
}

func (c *RedisReadingCache) SetReading(ctx context.Context, sessionID uuid.UUID, r affect.SmoothedReading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := c.rdb.Set(ctx, readingKey(sessionID), payload, readingTTL).Err(); err != nil {
		return fmt.Errorf("cache reading: %w", err)
	}
	return nil
}

func (c *RedisReadingCache) GetReading(ctx context.Context, sessionID uuid.UUID) (affect.SmoothedReading, bool, error) {
	var r affect.SmoothedReading
	payload, err := c.rdb.Get(ctx, readingKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, false, nil
	}
	if err != nil {
		return r, false, fmt.Errorf("get reading: %w", err)
	}
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, false, fmt.Errorf("unmarshal reading: %w", err)
	}
	return r, true, nil
}

func (c *RedisReadingCache) DeleteReading(ctx context.Context, sessionID uuid.UUID) error {
	if err := c.rdb.Del(ctx, readingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete reading: %w", err)
	}
	return nil
}
