package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/metrics"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoChannels is returned when the fanout has nothing to deliver through.
var ErrNoChannels = errors.New("notification: no delivery channel configured")

const defaultMaxConcurrency = 16

// Message is the recipient-independent part of a notification.
type Message struct {
	Title         string
	Body          string
	Category      models.NotificationCategory
	CorrelationID *uuid.UUID
	TargetType    string
}

// DeliveryOutcome is the result for one (recipient, channel) pair.
type DeliveryOutcome struct {
	RecipientID uuid.UUID
	Channel     string
	Err         error
}

func (o DeliveryOutcome) Delivered() bool {
	return o.Err == nil
}

// Report collects every outcome of a Send call.
type Report struct {
	Outcomes []DeliveryOutcome
}

// Delivered counts successful attempts.
func (r Report) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Delivered() {
			n++
		}
	}
	return n
}

// Failed counts failed attempts.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Delivered()
}

// Reached reports whether at least one channel delivered to the user.
func (r Report) Reached(userID uuid.UUID) bool {
	for _, o := range r.Outcomes {
		if o.RecipientID == userID && o.Delivered() {
			return true
		}
	}
	return false
}

// Fanout delivers a message to many recipients over every configured channel.
type Fanout struct {
	channels       []Channel
	maxConcurrency int
	logger         *logrus.Logger
	metrics        *metrics.Metrics
}

func NewFanout(channels []Channel, maxConcurrency int, logger *logrus.Logger, m *metrics.Metrics) *Fanout {
	if maxConcurrency < 1 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Fanout{
		channels:       channels,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		metrics:        m,
	}
}

// Send attempts every (recipient, channel) pair concurrently. Channel failures
// are recorded in the report and logged; only a fanout without channels
// returns an error.
func (f *Fanout) Send(ctx context.Context, recipients []models.Recipient, msg Message) (Report, error) {
	if len(f.channels) == 0 {
		return Report{}, ErrNoChannels
	}

	log := f.logger.WithFields(logrus.Fields{
		"service":  "notification",
		"method":   "Send",
		"category": msg.Category,
	})
	if msg.CorrelationID != nil {
		log = log.WithField("incident_id", *msg.CorrelationID)
	}

	recipients = uniqueRecipients(recipients)
	outcomes := make([]DeliveryOutcome, len(recipients)*len(f.channels))

	g := new(errgroup.Group)
	g.SetLimit(f.maxConcurrency)

	for i, rcpt := range recipients {
		env := models.NotificationEnvelope{
			Recipient:     rcpt,
			Title:         msg.Title,
			Body:          msg.Body,
			Category:      msg.Category,
			CorrelationID: msg.CorrelationID,
			TargetType:    msg.TargetType,
		}
		for j, ch := range f.channels {
			idx := i*len(f.channels) + j
			outcomes[idx] = DeliveryOutcome{RecipientID: rcpt.UserID, Channel: ch.Name()}
			g.Go(func() error {
				outcomes[idx].Err = deliver(ctx, ch, env)
				return nil
			})
		}
	}
	_ = g.Wait()

	report := Report{Outcomes: outcomes}
	for _, o := range report.Outcomes {
		f.metrics.IncrementDelivery(o.Channel, o.Delivered())
		if !o.Delivered() {
			log.WithFields(logrus.Fields{
				"channel":      o.Channel,
				"recipient_id": o.RecipientID,
			}).WithError(o.Err).Error("Notification delivery failed")
		}
	}

	log.WithFields(logrus.Fields{
		"recipients": len(recipients),
		"delivered":  report.Delivered(),
		"failed":     report.Failed(),
	}).Info("Notification fanout completed")

	return report, nil
}

func deliver(ctx context.Context, ch Channel, env models.NotificationEnvelope) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s channel panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Deliver(ctx, env)
}

func uniqueRecipients(recipients []models.Recipient) []models.Recipient {
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	out := make([]models.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r)
	}
	return out
}
