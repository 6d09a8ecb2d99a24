package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dispatchGuardKeyPrefix = "dispatch:incident:"

// RedisDispatchGuard lets each incident be dispatched once per TTL window.
type RedisDispatchGuard struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisDispatchGuard(client *redis.Client, ttl time.Duration) *RedisDispatchGuard {
	return &RedisDispatchGuard{
		redisClient: client,
		ttl:         ttl,
	}
}

func dispatchGuardKey(id uuid.UUID) string {
	return dispatchGuardKeyPrefix + id.String()
}

// Acquire reports true only for the first caller within the TTL window.
func (g *RedisDispatchGuard) Acquire(ctx context.Context, incidentID uuid.UUID) (bool, error) {
	ok, err := g.redisClient.SetNX(ctx, dispatchGuardKey(incidentID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dispatch guard: %w", err)
	}
	return ok, nil
}

func (g *RedisDispatchGuard) Release(ctx context.Context, incidentID uuid.UUID) error {
	if err := g.redisClient.Del(ctx, dispatchGuardKey(incidentID)).Err(); err != nil {
		return fmt.Errorf("failed to release dispatch guard: %w", err)
	}
	return nil
}
