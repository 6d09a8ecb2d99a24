package dispatch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shenikar/incident_dispatch/internal/dispatch/mocks"
	"github.com/shenikar/incident_dispatch/internal/metrics"
	"github.com/shenikar/incident_dispatch/internal/models"
	"github.com/shenikar/incident_dispatch/internal/notification"
	notification_mocks "github.com/shenikar/incident_dispatch/internal/notification/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type orchestratorMocks struct {
	reader   *mocks.MockResponderReader
	admins   *mocks.MockFallbackAdminReader
	notifier *mocks.MockNotifier
	audit    *mocks.MockAuditRecorder
	events   *mocks.MockEventPublisher
	guard    *mocks.MockGuard
	metrics  *metrics.Metrics
}

// newTestOrchestrator wires real matcher and escalation logic over mocked collaborators.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *orchestratorMocks) {
	ctrl := gomock.NewController(t)
	m := &orchestratorMocks{
		reader:   mocks.NewMockResponderReader(ctrl),
		admins:   mocks.NewMockFallbackAdminReader(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		audit:    mocks.NewMockAuditRecorder(ctrl),
		events:   mocks.NewMockEventPublisher(ctrl),
		guard:    mocks.NewMockGuard(ctrl),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	matcher := NewGeoMatcher(NewEligibilityFilter(m.reader))
	escalation := NewEscalationNotifier(m.admins, m.notifier, logger)
	o := NewOrchestrator(matcher, m.notifier, escalation, m.audit, DefaultSettings(), logger,
		WithGuard(m.guard),
		WithEventPublisher(m.events),
		WithMetrics(m.metrics),
	)
	o.now = func() time.Time { return fixedNow }
	return o, m
}

func (m *orchestratorMocks) allowDispatch(incidentID uuid.UUID) {
	m.guard.EXPECT().Acquire(gomock.Any(), incidentID).Return(true, nil).Times(1)
	m.events.EXPECT().PublishDecision(gomock.Any(), gomock.Any()).Return(nil).Times(1)
}

// End to end: two of three responders in range, both notified.
func TestDispatch_Matched(t *testing.T) {
	o, m := newTestOrchestrator(t)
	ctx := context.Background()
	incident := testIncident(models.IncidentTypeFire)

	near := eligibleResponder(northOf(lagos, 1))
	mid := eligibleResponder(northOf(lagos, 4))
	far := eligibleResponder(northOf(lagos, 9))
	for _, r := range []*models.Responder{&near, &mid, &far} {
		r.Agency.SupportedIncidentTypes = nil
		r.Specialties = []models.IncidentType{models.IncidentTypeFire}
	}
	admin := testUser(models.RoleAgencyAdmin)
	near.Agency.Admin = admin
	near.Agency.AdminUserID = &admin.ID

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), models.IncidentTypeFire).
		Return([]models.Responder{far, mid, near}, nil).Times(1)

	gomock.InOrder(
		m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, recipients []models.Recipient, msg notification.Message) (notification.Report, error) {
				require.Len(t, recipients, 2)
				assert.Equal(t, near.UserID, recipients[0].UserID)
				assert.Equal(t, near.User.Email, recipients[0].Email)
				assert.Equal(t, mid.UserID, recipients[1].UserID)
				assert.Equal(t, models.CategoryIncident, msg.Category)
				assert.Equal(t, "New fire incident nearby", msg.Title)
				assert.Equal(t, incident.ID, *msg.CorrelationID)
				return notification.Report{}, nil
			}),
		m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, recipients []models.Recipient, msg notification.Message) (notification.Report, error) {
				require.Len(t, recipients, 1)
				assert.Equal(t, admin.ID, recipients[0].UserID)
				assert.Equal(t, models.CategoryInfo, msg.Category)
				return notification.Report{}, nil
			}),
	)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, entry models.AuditEntry) {
			assert.Equal(t, ActionMatched, entry.Action)
			assert.Equal(t, "incident", entry.EntityName)
			assert.Equal(t, incident.ID, entry.EntityID)
			assert.Equal(t, []string{near.ID.String(), mid.ID.String()}, entry.Details["notified_responder_ids"])
			assert.Equal(t, fixedNow, entry.CreatedAt)
		}).Times(1)

	decision, err := o.Dispatch(ctx, incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeMatched, decision.Outcome)
	assert.Equal(t, []uuid.UUID{near.ID, mid.ID}, decision.NotifiedResponderIDs)
	assert.Equal(t, 2, decision.CandidateCount)
	assert.Equal(t, DefaultRadiusKm, decision.RadiusKm)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.DispatchOutcome.WithLabelValues("matched")))
}

func TestDispatch_MatchedTakesTopK(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	population := make([]models.Responder, 5)
	for i := range population {
		population[i] = eligibleResponder(northOf(lagos, float64(i)+0.5))
	}

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(population, nil).Times(1)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Len(DefaultTopK), gomock.Any()).Return(notification.Report{}, nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{population[0].ID, population[1].ID, population[2].ID}, decision.NotifiedResponderIDs)
	assert.Equal(t, 5, decision.CandidateCount)
}

// Nobody eligible, fallback admin notified exactly once.
func TestDispatch_EscalatedToFallbackAdmin(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)
	superAdmin := testUser(models.RoleSuperAdmin)

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(superAdmin, nil).Times(1)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, recipients []models.Recipient, msg notification.Message) (notification.Report, error) {
			require.Len(t, recipients, 1)
			assert.Equal(t, superAdmin.ID, recipients[0].UserID)
			assert.Equal(t, models.CategoryWarning, msg.Category)
			assert.Contains(t, msg.Body, "5.0 km")
			return notification.Report{}, nil
		}).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, entry models.AuditEntry) {
			assert.Equal(t, ActionEscalated, entry.Action)
			assert.Contains(t, entry.Description, "5.0 km")
			assert.Contains(t, entry.Description, "fire")
			assert.Equal(t, superAdmin.ID.String(), entry.Details["fallback_admin_id"])
		}).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeEscalated, decision.Outcome)
	assert.Empty(t, decision.NotifiedResponderIDs)
}

func TestDispatch_EscalatedOutOfRange(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).
		Return([]models.Responder{eligibleResponder(northOf(lagos, 12))}, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(nil, nil).Times(1)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, entry models.AuditEntry) {
			assert.Equal(t, ActionEscalated, entry.Action)
			assert.Contains(t, entry.Description, "no fallback administrator")
		}).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeEscalated, decision.Outcome)
}

func TestDispatch_InactiveFallbackAdminIsSkipped(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeMedical)
	superAdmin := testUser(models.RoleSuperAdmin)
	superAdmin.IsDeleted = true

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(superAdmin, nil).Times(1)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1)

	_, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
}

// Email fails for the only responder, in-app succeeds.
func TestDispatch_PartialChannelFailureStillMatched(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockResponderReader(ctrl)
	admins := mocks.NewMockFallbackAdminReader(ctrl)
	recorder := mocks.NewMockAuditRecorder(ctrl)
	inApp := notification_mocks.NewMockChannel(ctrl)
	email := notification_mocks.NewMockChannel(ctrl)
	inApp.EXPECT().Name().Return(notification.ChannelInApp).AnyTimes()
	email.EXPECT().Name().Return(notification.ChannelEmail).AnyTimes()

	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	fanout := notification.NewFanout([]notification.Channel{inApp, email}, 4, logger, nil)
	o := NewOrchestrator(
		NewGeoMatcher(NewEligibilityFilter(reader)),
		fanout,
		NewEscalationNotifier(admins, fanout, logger),
		recorder,
		DefaultSettings(),
		logger,
	)

	incident := testIncident(models.IncidentTypeFire)
	responder := eligibleResponder(northOf(lagos, 2))

	reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return([]models.Responder{responder}, nil).Times(1)
	inApp.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	email.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("smtp: 421 service not available")).Times(1)
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, entry models.AuditEntry) {
			assert.Equal(t, ActionMatched, entry.Action)
			assert.Equal(t, 1, entry.Details["deliveries_succeeded"])
			assert.Equal(t, 1, entry.Details["deliveries_failed"])
		}).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeMatched, decision.Outcome)
	assert.Equal(t, []uuid.UUID{responder.ID}, decision.NotifiedResponderIDs)
	assert.Contains(t, logs.String(), "Notification delivery failed")
	assert.Contains(t, logs.String(), "421 service not available")
}

func TestDispatch_MissingLocation(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)
	incident.Location = nil

	m.guard.EXPECT().Acquire(gomock.Any(), gomock.Any()).Times(0)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	decision, err := o.Dispatch(context.Background(), incident)

	assert.Nil(t, decision)
	assert.ErrorIs(t, err, ErrMissingLocation)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestDispatch_NilIncident(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Dispatch(context.Background(), nil)

	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestDispatch_InvalidSettings(t *testing.T) {
	o, m := newTestOrchestrator(t)
	o.settings.TopK = 0
	m.guard.EXPECT().Acquire(gomock.Any(), gomock.Any()).Times(0)

	_, err := o.Dispatch(context.Background(), testIncident(models.IncidentTypeFire))

	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestDispatch_AlreadyDispatched(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(false, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Times(0)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	_, err := o.Dispatch(context.Background(), incident)

	assert.ErrorIs(t, err, ErrAlreadyDispatched)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.DispatchOutcome.WithLabelValues(metrics.OutcomeDuplicate)))
}

func TestDispatch_GuardErrorFailsOpen(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(false, errors.New("redis: connection refused")).Times(1)
	m.events.EXPECT().PublishDecision(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(nil, nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeEscalated, decision.Outcome)
}

func TestDispatch_ResponderStoreFailure(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)
	dbErr := errors.New("pool closed")

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, dbErr).Times(1)
	m.guard.EXPECT().Release(gomock.Any(), incident.ID).Return(nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)
	m.events.EXPECT().PublishDecision(gomock.Any(), gomock.Any()).Times(0)

	decision, err := o.Dispatch(context.Background(), incident)

	assert.Nil(t, decision)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.DispatchOutcome.WithLabelValues(metrics.OutcomeError)))
}

func TestDispatch_ReleaseSurvivesExpiredContext(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.IncidentType) ([]models.Responder, error) {
			cancel()
			return nil, ctx.Err()
		}).Times(1)
	m.guard.EXPECT().Release(gomock.Any(), incident.ID).
		DoAndReturn(func(ctx context.Context, _ uuid.UUID) error {
			assert.NoError(t, ctx.Err(), "release must not inherit the cancelled dispatch context")
			return ctx.Err()
		}).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	_, err := o.Dispatch(ctx, incident)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatch_PublishSurvivesExpiredContext(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(nil, nil).Times(1)
	// The deadline passes right after the decision is recorded.
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(context.Context, models.AuditEntry) { cancel() }).Times(1)
	m.events.EXPECT().PublishDecision(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.DispatchDecision) error {
			assert.NoError(t, ctx.Err(), "publish must not inherit the cancelled dispatch context")
			return ctx.Err()
		}).Times(1)

	decision, err := o.Dispatch(ctx, incident)

	require.NoError(t, err)
	assert.Equal(t, models.DispatchOutcomeEscalated, decision.Outcome)
}

func TestDispatch_FallbackLookupFailure(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(nil, errors.New("timeout")).Times(1)
	m.guard.EXPECT().Release(gomock.Any(), incident.ID).Return(nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	_, err := o.Dispatch(context.Background(), incident)

	assert.ErrorContains(t, err, "could not resolve fallback admin")
}

func TestDispatch_NoChannelsConfigured(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).
		Return([]models.Responder{eligibleResponder(northOf(lagos, 1))}, nil).Times(1)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(notification.Report{}, notification.ErrNoChannels).Times(1)
	m.guard.EXPECT().Release(gomock.Any(), incident.ID).Return(nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(0)

	_, err := o.Dispatch(context.Background(), incident)

	assert.ErrorIs(t, err, notification.ErrNoChannels)
}

func TestDispatch_EventPublishFailureIsLoggedOnly(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	m.guard.EXPECT().Acquire(gomock.Any(), incident.ID).Return(true, nil).Times(1)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	m.admins.EXPECT().ReadFallbackAdmin(gomock.Any()).Return(nil, nil).Times(1)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).Times(1)
	m.events.EXPECT().PublishDecision(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, decision models.DispatchDecision) {
			assert.Equal(t, incident.ID, decision.IncidentID)
			assert.Equal(t, fixedNow, decision.Timestamp)
		}).Return(errors.New("redis down")).Times(1)

	decision, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	assert.NotNil(t, decision)
}

func TestDispatch_AgencyAdminsDeduplicated(t *testing.T) {
	o, m := newTestOrchestrator(t)
	incident := testIncident(models.IncidentTypeFire)

	admin := testUser(models.RoleAgencyAdmin)
	shared := testAgency(models.IncidentTypeFire)
	shared.Admin = admin
	a := eligibleResponder(northOf(lagos, 1))
	b := eligibleResponder(northOf(lagos, 2))
	a.Agency, b.Agency = shared, shared

	m.allowDispatch(incident.ID)
	m.reader.EXPECT().ReadEligibleResponders(gomock.Any(), gomock.Any()).Return([]models.Responder{a, b}, nil).Times(1)
	gomock.InOrder(
		m.notifier.EXPECT().Send(gomock.Any(), gomock.Len(2), gomock.Any()).Return(notification.Report{}, nil),
		m.notifier.EXPECT().Send(gomock.Any(), gomock.Len(1), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ []models.Recipient, msg notification.Message) (notification.Report, error) {
				assert.Contains(t, msg.Body, "2 responder(s) from Lagos State Fire Service")
				return notification.Report{}, nil
			}),
	)
	m.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, entry models.AuditEntry) {
			assert.Equal(t, []string{admin.ID.String()}, entry.Details["agency_admin_ids"])
		}).Times(1)

	_, err := o.Dispatch(context.Background(), incident)

	require.NoError(t, err)
}
