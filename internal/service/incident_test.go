package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_dispatch/internal/config"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestIncidentService builds the service over mocked repository and dispatcher.
func newTestIncidentService(t *testing.T) (*incidentService, *mocks.MockIncidentRepository, *mocks.MockDispatcher) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockIncidentRepository(ctrl)
	dispatcherMock := mocks.NewMockDispatcher(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		DispatchTimeout: 2 * time.Second,
	}

	service := NewIncidentService(repoMock, dispatcherMock, logger, cfg)
	return service.(*incidentService), repoMock, dispatcherMock
}

func newLocatedIncident() *models.Incident {
	return &models.Incident{
		Type:     models.IncidentTypeFire,
		Title:    "Market fire",
		Location: &models.Coordinate{Latitude: 6.5244, Longitude: 3.3792},
	}
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:    incidentID,
		Title: "Cached incident",
	}

	// Expectations
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)
	repoMock.EXPECT().GetByID(gomock.Any(), gomock.Any()).Times(0)

	// Act
	incident, err := service.GetIncident(ctx, incidentID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:    incidentID,
		Title: "Stored incident",
	}

	// Expectations
	// 1. cache miss
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	// 2. database hit
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. cache fill
	repoMock.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Act
	incident, err := service.GetIncident(ctx, incidentID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_CacheErrorFallsBackToDB(t *testing.T) {
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{ID: incidentID}

	repoMock.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(nil, errors.New("redis: i/o timeout")).Times(1)
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(expectedIncident, nil).Times(1)
	repoMock.EXPECT().SetIncidentCache(ctx, expectedIncident).Return(errors.New("redis: i/o timeout")).Times(1)

	incident, err := service.GetIncident(ctx, incidentID)

	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	dbError := fmt.Errorf("incident with id %s: %w", incidentID, ErrIncidentNotFound)

	// Expectations
	repoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)
	repoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(nil, dbError).
		Times(1)

	// Act
	incident, err := service.GetIncident(ctx, incidentID)

	// Assert
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorContains(t, err, "could not get incident")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestCreateIncident_Success(t *testing.T) {
	// Setup
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incidentToCreate := newLocatedIncident()
	assignedID := uuid.New()

	// Expectations
	gomock.InOrder(
		repoMock.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, inc *models.Incident) error {
				assert.Equal(t, models.IncidentStatusReported, inc.Status)
				inc.ID = assignedID
				return nil
			}).Times(1),
		dispatcherMock.EXPECT().
			Dispatch(gomock.Any(), incidentToCreate).
			DoAndReturn(func(dctx context.Context, inc *models.Incident) (*models.DispatchDecision, error) {
				_, hasDeadline := dctx.Deadline()
				assert.True(t, hasDeadline)
				return &models.DispatchDecision{IncidentID: inc.ID, Outcome: models.DispatchOutcomeMatched}, nil
			}).Times(1),
	)

	// Act
	err := service.CreateIncident(ctx, incidentToCreate)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusReported, incidentToCreate.Status)
	assert.Equal(t, assignedID, incidentToCreate.ID)
}

func TestCreateIncident_DispatchFailureDoesNotFailCreation(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()

	repoMock.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil, errors.New("responder store unavailable")).Times(1)

	err := service.CreateIncident(ctx, newLocatedIncident())

	assert.NoError(t, err)
}

func TestCreateIncident_DispatchSurvivesRequestCancellation(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx, cancel := context.WithCancel(context.Background())

	repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *models.Incident) error {
			cancel()
			return nil
		}).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(dctx context.Context, _ *models.Incident) (*models.DispatchDecision, error) {
			assert.NoError(t, dctx.Err())
			return &models.DispatchDecision{Outcome: models.DispatchOutcomeEscalated}, nil
		}).Times(1)

	err := service.CreateIncident(ctx, newLocatedIncident())

	assert.NoError(t, err)
}

func TestCreateIncident_RepositoryError(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()

	repoMock.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("duplicate key")).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

	err := service.CreateIncident(ctx, newLocatedIncident())

	require.Error(t, err)
	assert.ErrorContains(t, err, "could not create incident")
}

func TestCreateIncident_MissingLocation(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	incident := newLocatedIncident()
	incident.Location = nil

	repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

	err := service.CreateIncident(context.Background(), incident)

	assert.ErrorIs(t, err, ErrLocationRequired)
}

func TestUpdateStatus_Success(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	existingIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentStatusReported,
	}

	// Expectations
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(existingIncident, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(ctx, incidentID, models.IncidentStatusInProgress).Return(nil).Times(1)
	repoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)

	// Act
	updated, err := service.UpdateStatus(ctx, incidentID, models.IncidentStatusInProgress)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusInProgress, updated.Status)
}

func TestUpdateStatus_RejectsRegression(t *testing.T) {
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	repoMock.EXPECT().GetByID(ctx, incidentID).
		Return(&models.Incident{ID: incidentID, Status: models.IncidentStatusInProgress}, nil).Times(1)
	repoMock.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := service.UpdateStatus(ctx, incidentID, models.IncidentStatusReported)

	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	repoError := fmt.Errorf("incident with id %s: %w", incidentID, ErrIncidentNotFound)

	// Expectations
	repoMock.EXPECT().GetByID(ctx, incidentID).Return(nil, repoError).Times(1)

	// Act
	_, err := service.UpdateStatus(ctx, incidentID, models.IncidentStatusResolved)

	// Assert
	require.Error(t, err)
	assert.ErrorContains(t, err, "not found for update")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestListIncidents_Success(t *testing.T) {
	// Setup
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	page, pageSize := 1, 10
	expectedIncidents := []*models.Incident{
		{ID: uuid.New(), Title: "Incident 1"},
		{ID: uuid.New(), Title: "Incident 2"},
	}

	// Expectations
	repoMock.EXPECT().ListIncidents(ctx, page, pageSize).Return(expectedIncidents, nil).Times(1)

	// Act
	incidents, err := service.ListIncidents(ctx, page, pageSize)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expectedIncidents, incidents)
}

func TestListIncidents_ClampsPagination(t *testing.T) {
	service, repoMock, _ := newTestIncidentService(t)
	ctx := context.Background()

	repoMock.EXPECT().ListIncidents(ctx, 1, 20).Return(nil, nil).Times(2)

	_, err := service.ListIncidents(ctx, 0, 500)
	require.NoError(t, err)
	_, err = service.ListIncidents(ctx, -3, 0)
	require.NoError(t, err)
}

func TestRedispatch_Success(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incident := newLocatedIncident()
	incident.ID = uuid.New()
	incident.Status = models.IncidentStatusInProgress
	decision := &models.DispatchDecision{IncidentID: incident.ID, Outcome: models.DispatchOutcomeMatched}

	repoMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), incident).Return(decision, nil).Times(1)

	got, err := service.Redispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, decision, got)
}

func TestRedispatch_PropagatesDispatchError(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incident := newLocatedIncident()
	incident.Status = models.IncidentStatusReported
	guardErr := errors.New("dispatch: incident already dispatched")

	repoMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), incident).Return(nil, guardErr).Times(1)

	_, err := service.Redispatch(ctx, incident.ID)

	assert.ErrorIs(t, err, guardErr)
}

func TestRedispatch_ClosedIncident(t *testing.T) {
	service, repoMock, dispatcherMock := newTestIncidentService(t)
	ctx := context.Background()
	incident := newLocatedIncident()
	incident.Status = models.IncidentStatusResolved

	repoMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	dispatcherMock.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.Redispatch(ctx, incident.ID)

	assert.ErrorIs(t, err, ErrIncidentClosed)
}
