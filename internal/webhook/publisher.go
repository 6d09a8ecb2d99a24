package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_dispatch/internal/models"
)

const (
	webhookQueueKey = "webhook_events"
)

// DispatchEvent is the payload POSTed to the webhook receiver after every
// dispatch decision.
type DispatchEvent struct {
	Event                string                 `json:"event"`
	IncidentID           uuid.UUID              `json:"incident_id"`
	IncidentType         models.IncidentType    `json:"incident_type"`
	Outcome              models.DispatchOutcome `json:"outcome"`
	NotifiedResponderIDs []uuid.UUID            `json:"notified_responder_ids"`
	CandidateCount       int                    `json:"candidate_count"`
	RadiusKm             float64                `json:"radius_km"`
	Rationale            string                 `json:"rationale"`
	Timestamp            time.Time              `json:"timestamp"`
}

// NewDispatchEvent converts a decision into its webhook payload.
func NewDispatchEvent(decision models.DispatchDecision) DispatchEvent {
	ids := decision.NotifiedResponderIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return DispatchEvent{
		Event:                "dispatch." + string(decision.Outcome),
		IncidentID:           decision.IncidentID,
		IncidentType:         decision.IncidentType,
		Outcome:              decision.Outcome,
		NotifiedResponderIDs: ids,
		CandidateCount:       decision.CandidateCount,
		RadiusKm:             decision.RadiusKm,
		Rationale:            decision.Rationale,
		Timestamp:            decision.Timestamp,
	}
}

// RedisWebhookPublisher queues dispatch events in a Redis list for the worker.
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// PublishDecision queues the webhook event for a dispatch decision.
func (p *RedisWebhookPublisher) PublishDecision(ctx context.Context, decision models.DispatchDecision) error {
	return p.Publish(ctx, NewDispatchEvent(decision))
}

// Publish pushes the event onto the left of the queue; the worker pops from the right.
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
