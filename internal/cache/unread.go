package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	customError "github.com/segyhp/loan-tracker/pkg/errors"
)

const (
	unreadKeyPrefix  = "notifications:unread:"
	DefaultUnreadTTL = 10 * time.Minute
)

// UnreadCounts caches per-user unread notification counts in redis
type UnreadCounts struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUnreadCounts(client *redis.Client, ttl time.Duration) *UnreadCounts {
	if ttl <= 0 {
		ttl = DefaultUnreadTTL
	}
	return &UnreadCounts{client: client, ttl: ttl}
}

func unreadKey(userID uuid.UUID) string {
	return unreadKeyPrefix + userID.String()
}

// Get returns ok=false when the count is not cached
func (c *UnreadCounts) Get(ctx context.Context, userID uuid.UUID) (int, bool, error) {
	val, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, customError.WrapCacheError(err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		// corrupt entry, treat as a miss
		return 0, false, nil
	}
	return count, true, nil
}

func (c *UnreadCounts) Set(ctx context.Context, userID uuid.UUID, count int) error {
	if err := c.client.Set(ctx, unreadKey(userID), count, c.ttl).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

func (c *UnreadCounts) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}
