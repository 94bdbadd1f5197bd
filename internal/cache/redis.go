// Package cache holds the spent refresh-token ledgers.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/config"
)

const spentPrefix = "tiergate:spent:"

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

var _ auth.SpentTokens = (*RedisSpentTokens)(nil)

// RedisSpentTokens shares the ledger between API replicas.
type RedisSpentTokens struct {
	client *redis.Client
}

func NewRedisSpentTokens(client *redis.Client) *RedisSpentTokens {
	return &RedisSpentTokens{client: client}
}

func (r *RedisSpentTokens) MarkSpent(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := r.client.SetNX(ctx, spentPrefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark spent: %w", err)
	}
	return first, nil
}
