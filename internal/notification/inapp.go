package notification

import (
	"context"
	"fmt"

	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// InAppChannel writes the notification log row and pushes it to live sessions.
type InAppChannel struct {
	store    Store
	realtime RealtimePublisher
	logger   *logrus.Logger
}

// NewInAppChannel builds the in-app channel. realtime may be nil.
func NewInAppChannel(store Store, realtime RealtimePublisher, logger *logrus.Logger) *InAppChannel {
	return &InAppChannel{
		store:    store,
		realtime: realtime,
		logger:   logger,
	}
}

func (c *InAppChannel) Name() string { return ChannelInApp }

// Deliver persists the notification. A failed push after a successful write
// is logged only, the user still sees the notification on next load.
func (c *InAppChannel) Deliver(ctx context.Context, env models.NotificationEnvelope) error {
	n := &models.Notification{
		UserID:     env.Recipient.UserID,
		Title:      env.Title,
		Message:    env.Body,
		Category:   env.Category,
		TargetID:   env.CorrelationID,
		TargetType: env.TargetType,
	}
	if err := c.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("in-app: failed to persist notification: %w", err)
	}

	if c.realtime == nil {
		return nil
	}
	event := models.RealtimeEvent{Type: EventInAppNotification, Notification: n}
	if err := c.realtime.PublishToUser(ctx, n.UserID, event); err != nil {
		c.logger.WithFields(logrus.Fields{
			"channel":         ChannelInApp,
			"recipient_id":    n.UserID,
			"notification_id": n.ID,
		}).WithError(err).Warn("Realtime push failed after notification was stored")
	}
	return nil
}
