package service

//go:generate mockgen -source=incident.go -destination=mocks/mock_incident.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/config"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrInvalidTransition = errors.New("invalid incident status transition")
	ErrLocationRequired  = errors.New("incident location is required")
	ErrIncidentClosed    = errors.New("incident is closed")
)

// IncidentRepository is the incident store plus its read cache.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) error
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// Dispatcher runs the dispatch cascade for a persisted incident.
type Dispatcher interface {
	Dispatch(ctx context.Context, incident *models.Incident) (*models.DispatchDecision, error)
}

// IncidentService is the business surface over incidents.
type IncidentService interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) (*models.Incident, error)
	Redispatch(ctx context.Context, id uuid.UUID) (*models.DispatchDecision, error)
}

type incidentService struct {
	repo       IncidentRepository
	dispatcher Dispatcher
	logger     *logrus.Logger
	cfg        *config.Config
}

func NewIncidentService(repo IncidentRepository, dispatcher Dispatcher, logger *logrus.Logger, cfg *config.Config) IncidentService {
	return &incidentService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// CreateIncident persists a new incident and dispatches it. Dispatch is a
// side effect: its failure is logged and the incident stays created.
func (s *incidentService) CreateIncident(ctx context.Context, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"type":    incident.Type,
	})
	log.Info("Attempting to create a new incident")

	if incident.Location == nil {
		log.Warn("Rejected incident without location")
		return fmt.Errorf("service: could not create incident: %w", ErrLocationRequired)
	}

	incident.Status = models.IncidentStatusReported
	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", err)
	}

	log = log.WithField("incident_id", incident.ID)
	log.Info("Incident created successfully")

	dispatchCtx, cancel := s.dispatchContext(ctx)
	defer cancel()

	decision, err := s.dispatcher.Dispatch(dispatchCtx, incident)
	if err != nil {
		log.WithError(err).Error("Dispatch failed for new incident")
		return nil
	}
	log.WithField("outcome", decision.Outcome).Info("Incident dispatched")
	return nil
}

// GetIncident reads through the Redis cache.
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident cache")
	}
	if cached != nil {
		log.Debug("Incident served from cache")
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// ListIncidents returns a page of incidents, newest first.
func (s *incidentService) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})
	log.Info("Listing incidents")

	incidents, err := s.repo.ListIncidents(ctx, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// UpdateStatus moves an incident forward through its lifecycle.
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Attempting to update incident status")

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update a non-existent incident")
		return nil, fmt.Errorf("service: incident with id %s not found for update: %w", id, err)
	}

	if !existing.Status.CanTransitionTo(status) {
		log.WithField("current_status", existing.Status).Warn("Rejected status transition")
		return nil, fmt.Errorf("service: %s -> %s: %w", existing.Status, status, ErrInvalidTransition)
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		log.WithError(err).Error("Failed to update incident status in repository")
		return nil, fmt.Errorf("service: could not update incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	existing.Status = status
	existing.UpdatedAt = time.Now().UTC()
	log.Info("Incident status updated successfully")
	return existing, nil
}

// Redispatch re-runs dispatch for an open incident, subject to the dedup policy.
func (s *incidentService) Redispatch(ctx context.Context, id uuid.UUID) (*models.DispatchDecision, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "Redispatch",
		"incident_id": id,
	})
	log.Info("Redispatch requested")

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to redispatch a non-existent incident")
		return nil, fmt.Errorf("service: incident with id %s not found for dispatch: %w", id, err)
	}
	if incident.Status.IsTerminal() {
		log.WithField("status", incident.Status).Warn("Rejected redispatch of closed incident")
		return nil, fmt.Errorf("service: %w", ErrIncidentClosed)
	}

	dispatchCtx, cancel := s.dispatchContext(ctx)
	defer cancel()

	decision, err := s.dispatcher.Dispatch(dispatchCtx, incident)
	if err != nil {
		log.WithError(err).Error("Redispatch failed")
		return nil, fmt.Errorf("service: could not dispatch incident: %w", err)
	}

	log.WithField("outcome", decision.Outcome).Info("Incident redispatched")
	return decision, nil
}

// dispatchContext detaches dispatch from the request's cancellation and bounds it.
func (s *incidentService) dispatchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
