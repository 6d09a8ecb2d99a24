package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_dispatch/internal/models"
)

const (
	realtimeChannelPrefix = "notifications:"

	EventInAppNotification = "in_app_notification"
)

// RealtimeChannelName returns the pub/sub channel for a user.
func RealtimeChannelName(userID uuid.UUID) string {
	return realtimeChannelPrefix + userID.String()
}

// RedisRealtimePublisher publishes events over Redis pub/sub; the websocket
// gateway subscribed to the user channel relays them.
type RedisRealtimePublisher struct {
	redisClient *redis.Client
}

func NewRedisRealtimePublisher(client *redis.Client) *RedisRealtimePublisher {
	return &RedisRealtimePublisher{
		redisClient: client,
	}
}

func (p *RedisRealtimePublisher) PublishToUser(ctx context.Context, userID uuid.UUID, event models.RealtimeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime event: %w", err)
	}
	if err := p.redisClient.Publish(ctx, RealtimeChannelName(userID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	return nil
}
