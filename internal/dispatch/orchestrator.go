package dispatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/metrics"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/notification"
	"github.com/sirupsen/logrus"
)

// Audit actions written once per dispatch decision.
const (
	ActionMatched   = "dispatch.matched"
	ActionEscalated = "dispatch.escalated"
)

const (
	DefaultRadiusKm = 5.0
	DefaultTopK     = 3

	// cleanupTimeout bounds guard release and event publish, which run after
	// the dispatch context may already be done.
	cleanupTimeout = 5 * time.Second
)

// Settings are the dispatch tunables.
type Settings struct {
	RadiusKm float64
	TopK     int
}

func DefaultSettings() Settings {
	return Settings{RadiusKm: DefaultRadiusKm, TopK: DefaultTopK}
}

func (s Settings) validate() error {
	if math.IsNaN(s.RadiusKm) || s.RadiusKm <= 0 {
		return fmt.Errorf("%w: radius must be positive, got %v", ErrContractViolation, s.RadiusKm)
	}
	if s.TopK < 1 {
		return fmt.Errorf("%w: top-k must be at least 1, got %d", ErrContractViolation, s.TopK)
	}
	return nil
}

// Orchestrator turns a freshly persisted incident into a Matched or Escalated
// decision, notifying the right people and recording exactly one audit entry.
type Orchestrator struct {
	matcher    *GeoMatcher
	notifier   Notifier
	escalation *EscalationNotifier
	audit      AuditRecorder
	settings   Settings
	guard      Guard
	events     EventPublisher
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	now        func() time.Time
}

type Option func(o *Orchestrator)

func WithGuard(g Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) {
		o.events = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(
	matcher *GeoMatcher,
	notifier Notifier,
	escalation *EscalationNotifier,
	audit AuditRecorder,
	settings Settings,
	logger *logrus.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		matcher:    matcher,
		notifier:   notifier,
		escalation: escalation,
		audit:      audit,
		settings:   settings,
		guard:      NoopGuard{},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch runs the full cascade for one incident. Channel-level delivery
// failures never fail the call; contract violations, collaborator failures
// and a rejected repeat dispatch do.
func (o *Orchestrator) Dispatch(ctx context.Context, incident *models.Incident) (*models.DispatchDecision, error) {
	if incident == nil {
		return nil, fmt.Errorf("%w: nil incident", ErrContractViolation)
	}

	log := o.logger.WithFields(logrus.Fields{
		"service":       "dispatch",
		"method":        "Dispatch",
		"incident_id":   incident.ID,
		"incident_type": incident.Type,
	})

	if incident.Location == nil {
		log.WithError(ErrMissingLocation).Error("Dispatch aborted")
		return nil, ErrMissingLocation
	}
	if err := o.settings.validate(); err != nil {
		log.WithError(err).Error("Dispatch aborted")
		return nil, err
	}

	acquired, err := o.guard.Acquire(ctx, incident.ID)
	if err != nil {
		log.WithError(err).Warn("Dispatch guard unavailable, dispatching anyway")
		acquired = true
	}
	if !acquired {
		log.Warn("Incident was already dispatched, skipping")
		o.metrics.IncrementOutcome(metrics.OutcomeDuplicate)
		return nil, ErrAlreadyDispatched
	}

	start := time.Now()
	decision, err := o.decide(ctx, incident, log)
	if err != nil {
		log.WithError(err).Error("Dispatch failed")
		o.metrics.IncrementOutcome(metrics.OutcomeError)
		o.release(ctx, incident.ID, log)
		return nil, err
	}

	o.publish(ctx, *decision, log)
	o.metrics.IncrementOutcome(string(decision.Outcome))
	o.metrics.ObserveDispatchLatency(time.Since(start))

	log.WithFields(logrus.Fields{
		"outcome":    decision.Outcome,
		"candidates": decision.CandidateCount,
		"notified":   len(decision.NotifiedResponderIDs),
	}).Info("Dispatch completed")
	return decision, nil
}

func (o *Orchestrator) decide(ctx context.Context, incident *models.Incident, log *logrus.Entry) (*models.DispatchDecision, error) {
	candidates, err := o.matcher.FindCandidates(ctx, incident.Location, incident.Type, o.settings.RadiusKm)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveCandidates(len(candidates))

	if len(candidates) == 0 {
		return o.escalate(ctx, incident)
	}
	return o.match(ctx, incident, candidates, log)
}

func (o *Orchestrator) escalate(ctx context.Context, incident *models.Incident) (*models.DispatchDecision, error) {
	admin, err := o.escalation.NotifyNoResponders(ctx, incident, o.settings.RadiusKm)
	if err != nil {
		return nil, err
	}

	rationale := fmt.Sprintf("no eligible responders within %.1f km for %s incident", o.settings.RadiusKm, incident.Type)
	details := map[string]any{
		"outcome":       models.DispatchOutcomeEscalated,
		"radius_km":     o.settings.RadiusKm,
		"incident_type": incident.Type,
	}
	if admin != nil {
		rationale += "; fallback administrator notified"
		details["fallback_admin_id"] = admin.ID.String()
	} else {
		rationale += "; no fallback administrator available"
	}

	decision := &models.DispatchDecision{
		IncidentID:           incident.ID,
		IncidentType:         incident.Type,
		Outcome:              models.DispatchOutcomeEscalated,
		NotifiedResponderIDs: []uuid.UUID{},
		RadiusKm:             o.settings.RadiusKm,
		Rationale:            rationale,
		Timestamp:            o.now().UTC(),
	}
	o.record(ctx, ActionEscalated, decision, details)
	return decision, nil
}

func (o *Orchestrator) match(ctx context.Context, incident *models.Incident, candidates []Candidate, log *logrus.Entry) (*models.DispatchDecision, error) {
	selected := TopK(candidates, o.settings.TopK)

	ids := make([]uuid.UUID, 0, len(selected))
	recipients := make([]models.Recipient, 0, len(selected))
	for _, c := range selected {
		ids = append(ids, c.Responder.ID)
		recipients = append(recipients, responderRecipient(c.Responder))
	}

	kind := humanType(incident.Type)
	body := fmt.Sprintf("A %s incident was reported at %s, within %.1f km of your base. Open the incident to respond.",
		kind, describeLocation(incident), o.settings.RadiusKm)
	report, err := o.notifier.Send(ctx, recipients, notification.Message{
		Title:         fmt.Sprintf("New %s incident nearby", kind),
		Body:          body,
		Category:      models.CategoryIncident,
		CorrelationID: &incident.ID,
		TargetType:    incidentTargetType,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: could not notify responders: %w", err)
	}

	admins, err := o.escalation.NotifyAgencyAdmins(ctx, incident, selected)
	if err != nil {
		// Responders were already told; the decision stands.
		log.WithError(err).Error("Failed to notify agency administrators")
	}

	rationale := fmt.Sprintf("notified %d of %d candidates within %.1f km for %s incident, nearest %.2f km",
		len(selected), len(candidates), o.settings.RadiusKm, incident.Type, selected[0].DistanceKm)
	notified := make([]string, len(ids))
	for i, id := range ids {
		notified[i] = id.String()
	}
	adminIDs := make([]string, len(admins))
	for i, id := range admins {
		adminIDs[i] = id.String()
	}
	details := map[string]any{
		"outcome":                models.DispatchOutcomeMatched,
		"radius_km":              o.settings.RadiusKm,
		"incident_type":          incident.Type,
		"candidate_count":        len(candidates),
		"notified_responder_ids": notified,
		"agency_admin_ids":       adminIDs,
		"deliveries_succeeded":   report.Delivered(),
		"deliveries_failed":      report.Failed(),
	}

	decision := &models.DispatchDecision{
		IncidentID:           incident.ID,
		IncidentType:         incident.Type,
		Outcome:              models.DispatchOutcomeMatched,
		NotifiedResponderIDs: ids,
		RadiusKm:             o.settings.RadiusKm,
		CandidateCount:       len(candidates),
		Rationale:            rationale,
		Timestamp:            o.now().UTC(),
	}
	o.record(ctx, ActionMatched, decision, details)
	return decision, nil
}

func (o *Orchestrator) record(ctx context.Context, action string, decision *models.DispatchDecision, details map[string]any) {
	o.audit.Record(ctx, models.AuditEntry{
		Action:      action,
		EntityName:  incidentTargetType,
		EntityID:    decision.IncidentID,
		Description: decision.Rationale,
		Details:     details,
		CreatedAt:   decision.Timestamp,
	})
}

// release frees the guard on a context detached from the failed dispatch, so
// an expired deadline does not keep the key held until its TTL.
func (o *Orchestrator) release(ctx context.Context, incidentID uuid.UUID, log *logrus.Entry) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := o.guard.Release(relCtx, incidentID); err != nil {
		log.WithError(err).Warn("Failed to release dispatch guard")
	}
}

func (o *Orchestrator) publish(ctx context.Context, decision models.DispatchDecision, log *logrus.Entry) {
	if o.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := o.events.PublishDecision(pubCtx, decision); err != nil {
		log.WithError(err).Warn("Failed to publish dispatch event")
	}
}

func responderRecipient(r models.Responder) models.Recipient {
	rcpt := models.Recipient{UserID: r.UserID}
	if r.User != nil {
		rcpt.Email = r.User.Email
		rcpt.Name = r.User.FullName
	}
	return rcpt
}
