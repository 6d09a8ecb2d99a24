package notification

//go:generate mockgen -source=channel.go -destination=mocks/mock_channel.go -package=mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/models"
)

// Channel names.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Channel delivers one envelope over one transport. Implementations must
// honour ctx cancellation and report failures as errors, never panics.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, env models.NotificationEnvelope) error
}

// Store persists in-app notifications.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// RealtimePublisher pushes an event to a user's live connections.
type RealtimePublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event models.RealtimeEvent) error
}

// MailSender sends a single HTML email.
type MailSender interface {
	SendHTML(ctx context.Context, to, subject, htmlBody string) error
}
