package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/notification"
	"github.com/sirupsen/logrus"
)

const incidentTargetType = "incident"

// EscalationNotifier alerts administrators around a dispatch: the platform
// fallback admin when nobody matched, agency admins when responders did.
type EscalationNotifier struct {
	admins   FallbackAdminReader
	notifier Notifier
	logger   *logrus.Logger
}

func NewEscalationNotifier(admins FallbackAdminReader, notifier Notifier, logger *logrus.Logger) *EscalationNotifier {
	return &EscalationNotifier{
		admins:   admins,
		notifier: notifier,
		logger:   logger,
	}
}

// NotifyNoResponders sends one Warning notification to the fallback admin.
// It returns the admin that was addressed, or nil when none is configured.
func (e *EscalationNotifier) NotifyNoResponders(ctx context.Context, incident *models.Incident, radiusKm float64) (*models.User, error) {
	log := e.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "NotifyNoResponders",
		"incident_id": incident.ID,
	})

	admin, err := e.admins.ReadFallbackAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: could not resolve fallback admin: %w", err)
	}
	if !admin.Usable() {
		log.Warn("No fallback administrator available for escalation")
		return nil, nil
	}

	kind := humanType(incident.Type)
	body := fmt.Sprintf("No eligible responder was found within %.1f km of the %s incident at %s. Manual dispatch is required.",
		radiusKm, kind, describeLocation(incident))
	msg := notification.Message{
		Title:         fmt.Sprintf("No responders available for %s incident", kind),
		Body:          body,
		Category:      models.CategoryWarning,
		CorrelationID: &incident.ID,
		TargetType:    incidentTargetType,
	}
	if _, err := e.notifier.Send(ctx, []models.Recipient{recipientOf(admin)}, msg); err != nil {
		return nil, fmt.Errorf("dispatch: could not notify fallback admin: %w", err)
	}

	log.WithField("admin_id", admin.ID).Info("Fallback administrator notified")
	return admin, nil
}

// NotifyAgencyAdmins sends an Info confirmation to the admin of every distinct
// usable agency among the selected responders. It returns the notified admin IDs.
func (e *EscalationNotifier) NotifyAgencyAdmins(ctx context.Context, incident *models.Incident, selected []Candidate) ([]uuid.UUID, error) {
	log := e.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "NotifyAgencyAdmins",
		"incident_id": incident.ID,
	})

	type agencyGroup struct {
		agency     *models.Agency
		responders int
	}
	var order []uuid.UUID
	groups := make(map[uuid.UUID]*agencyGroup)
	for _, c := range selected {
		agency := c.Responder.Agency
		if !agency.Usable() || !agency.Admin.Usable() {
			continue
		}
		g, ok := groups[agency.ID]
		if !ok {
			g = &agencyGroup{agency: agency}
			groups[agency.ID] = g
			order = append(order, agency.ID)
		}
		g.responders++
	}

	kind := humanType(incident.Type)
	notified := make([]uuid.UUID, 0, len(order))
	for _, id := range order {
		g := groups[id]
		body := fmt.Sprintf("%d responder(s) from %s were notified about the %s incident at %s.",
			g.responders, g.agency.Name, kind, describeLocation(incident))
		msg := notification.Message{
			Title:         fmt.Sprintf("Responders dispatched for %s incident", kind),
			Body:          body,
			Category:      models.CategoryInfo,
			CorrelationID: &incident.ID,
			TargetType:    incidentTargetType,
		}
		if _, err := e.notifier.Send(ctx, []models.Recipient{recipientOf(g.agency.Admin)}, msg); err != nil {
			return notified, fmt.Errorf("dispatch: could not notify agency admin: %w", err)
		}
		notified = append(notified, g.agency.Admin.ID)
	}

	log.WithField("admins", len(notified)).Info("Agency administrators notified")
	return notified, nil
}

func recipientOf(u *models.User) models.Recipient {
	return models.Recipient{UserID: u.ID, Email: u.Email, Name: u.FullName}
}

func humanType(t models.IncidentType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func describeLocation(incident *models.Incident) string {
	if incident.Address != "" {
		return incident.Address
	}
	if incident.Location == nil {
		return "an unknown location"
	}
	return fmt.Sprintf("%.4f, %.4f", incident.Location.Latitude, incident.Location.Longitude)
}
