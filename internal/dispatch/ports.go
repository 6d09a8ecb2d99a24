package dispatch

//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/notification"
)

// ResponderReader is the read-only snapshot surface over responders. Returned
// responders carry their Agency (with Admin) and User.
type ResponderReader interface {
	ReadEligibleResponders(ctx context.Context, incidentType models.IncidentType) ([]models.Responder, error)
}

// FallbackAdminReader resolves the platform-level escalation recipient.
// A nil user with a nil error means nobody is configured.
type FallbackAdminReader interface {
	ReadFallbackAdmin(ctx context.Context) (*models.User, error)
}

type Notifier interface {
	Send(ctx context.Context, recipients []models.Recipient, msg notification.Message) (notification.Report, error)
}

// AuditRecorder never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

type EventPublisher interface {
	PublishDecision(ctx context.Context, decision models.DispatchDecision) error
}

// Guard decides whether an incident may be dispatched again. Release undoes
// an Acquire when the dispatch failed before reaching a decision.
type Guard interface {
	Acquire(ctx context.Context, incidentID uuid.UUID) (bool, error)
	Release(ctx context.Context, incidentID uuid.UUID) error
}
