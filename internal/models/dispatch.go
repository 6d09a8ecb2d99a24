package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchOutcome is the terminal result of one dispatch invocation.
type DispatchOutcome string

const (
	DispatchOutcomeMatched   DispatchOutcome = "matched"
	DispatchOutcomeEscalated DispatchOutcome = "escalated"
)

// DispatchDecision describes one dispatch invocation. It is persisted only as
// an audit entry and never mutated.
type DispatchDecision struct {
	IncidentID           uuid.UUID       `json:"incident_id"`
	IncidentType         IncidentType    `json:"incident_type"`
	Outcome              DispatchOutcome `json:"outcome"`
	NotifiedResponderIDs []uuid.UUID     `json:"notified_responder_ids"`
	RadiusKm             float64         `json:"radius_km"`
	CandidateCount       int             `json:"candidate_count"`
	Rationale            string          `json:"rationale"`
	Timestamp            time.Time       `json:"timestamp"`
}

// NotificationCategory is the severity tag carried by a notification.
type NotificationCategory string

const (
	CategoryInfo     NotificationCategory = "info"
	CategoryWarning  NotificationCategory = "warning"
	CategoryIncident NotificationCategory = "incident"
)

// Recipient identifies a notification target.
type Recipient struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

// NotificationEnvelope is built per recipient and discarded after the
// delivery attempt.
type NotificationEnvelope struct {
	Recipient     Recipient
	Title         string
	Body          string
	Category      NotificationCategory
	CorrelationID *uuid.UUID
	TargetType    string
}

// Notification is a persisted in-app notification row.
type Notification struct {
	ID         uuid.UUID            `json:"id"`
	UserID     uuid.UUID            `json:"user_id"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Category   NotificationCategory `json:"category"`
	TargetID   *uuid.UUID           `json:"target_id,omitempty"`
	TargetType string               `json:"target_type,omitempty"`
	IsRead     bool                 `json:"is_read"`
	CreatedAt  time.Time            `json:"created_at"`
}

// AuditEntry is an append-only audit log row.
type AuditEntry struct {
	ID          uuid.UUID      `json:"id"`
	Action      string         `json:"action"`
	EntityName  string         `json:"entity_name"`
	EntityID    uuid.UUID      `json:"entity_id"`
	Description string         `json:"description"`
	ActorID     *uuid.UUID     `json:"actor_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RealtimeEvent is the payload pushed to a user's live connections.
type RealtimeEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
}
