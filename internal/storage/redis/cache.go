package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ========== 限流 ==========

// IncrementRateLimit 自增限流计数，首次创建时设置窗口过期。
func (c *Client) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	ctx := context.Background()
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return incr.Val(), nil
}

// GetRateLimit 获取当前限流计数。
func (c *Client) GetRateLimit(key string) (int64, error) {
	ctx := context.Background()
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	val, err := c.rdb.Get(ctx, fullKey).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rate limit: %w", err)
	}
	return val, nil
}

// ========== JWT 黑名单 ==========

// AddToBlacklist 将 JWT 的 jti 加入黑名单直到其过期。
func (c *Client) AddToBlacklist(jti string, ttl time.Duration) error {
	ctx := context.Background()
	key := fmt.Sprintf("jwt:blacklist:%s", jti)
	return c.rdb.Set(ctx, key, "1", ttl).Err()
}

// IsBlacklisted 判断 jti 是否在黑名单中。
func (c *Client) IsBlacklisted(jti string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf("jwt:blacklist:%s", jti)

	_, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return true, nil
}
