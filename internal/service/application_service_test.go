package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

type mockApplicationRepo struct {
	apps        map[string]*models.Application
	history     map[string][]models.StatusHistoryEntry
	failUpdates int
	updateCalls int
}

func newMockApplicationRepo() *mockApplicationRepo {
	return &mockApplicationRepo{
		apps:    make(map[string]*models.Application),
		history: make(map[string][]models.StatusHistoryEntry),
	}
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry, audit *models.AuditLog) error {
	app.ID = "app-1"
	app.ApplicationRef = "APP2609010001"
	app.Version = 1
	stored := *app
	m.apps[app.ID] = &stored
	m.history[app.ID] = append(m.history[app.ID], *entry)
	return nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.apps[id]; ok {
		copied := *app
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var result []models.Application
	for _, app := range m.apps {
		if filter.AgentID != "" && app.AgentID != filter.AgentID {
			continue
		}
		if filter.ClientID != "" && app.ClientID != filter.ClientID {
			continue
		}
		result = append(result, *app)
	}
	return result, len(result), nil
}

func (m *mockApplicationRepo) ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	return m.history[applicationID], nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, app *models.Application, target models.ApplicationStatus, entry *models.StatusHistoryEntry, audit *models.AuditLog) error {
	m.updateCalls++
	if m.failUpdates > 0 {
		m.failUpdates--
		return repository.ErrVersionConflict
	}
	stored, ok := m.apps[app.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != app.Version {
		return repository.ErrVersionConflict
	}
	stored.Status = target
	stored.Version++
	app.Status = target
	app.Version = stored.Version
	m.history[app.ID] = append(m.history[app.ID], *entry)
	return nil
}

type mockFormReader struct {
	forms map[string]*models.AuthorizationForm
}

func (m *mockFormReader) FindByID(ctx context.Context, id string) (*models.AuthorizationForm, error) {
	if form, ok := m.forms[id]; ok {
		return form, nil
	}
	return nil, sql.ErrNoRows
}

type mockSettler struct {
	calls []models.TriggerType
	err   error
}

func (m *mockSettler) SettleMilestone(ctx context.Context, app *models.Application, trigger models.TriggerType, actor models.Actor) (*models.CommissionRecord, error) {
	m.calls = append(m.calls, trigger)
	if m.err != nil {
		return nil, m.err
	}
	return &models.CommissionRecord{ID: "rec-1", ApplicationID: app.ID, TriggerType: trigger}, nil
}

func completeForm() *models.AuthorizationForm {
	now := time.Now().UTC()
	by1, by2 := "client-1", "agent-1"
	return &models.AuthorizationForm{
		ID:                     "form-1",
		ApplicationID:          "app-1",
		ApplicantID:            "client-1",
		RepresentativeID:       "agent-1",
		ApplicantSignedBy:      &by1,
		ApplicantSignedAt:      &now,
		RepresentativeSignedBy: &by2,
		RepresentativeSignedAt: &now,
		ExpiresAt:              now.AddDate(2, 0, 0),
	}
}

func newApplicationFixture(status models.ApplicationStatus) (*mockApplicationRepo, *models.Application) {
	repo := newMockApplicationRepo()
	app := &models.Application{
		ID:              "app-1",
		ApplicationRef:  "APP2609010001",
		ClientID:        "client-1",
		AgentID:         "agent-1",
		Status:          status,
		TuitionFeeCents: 1000000,
		Currency:        "AUD",
		Version:         1,
	}
	repo.apps[app.ID] = app
	return repo, app
}

func newApplicationService(repo *mockApplicationRepo, forms *mockFormReader, settler *mockSettler) *ApplicationService {
	if forms == nil {
		forms = &mockFormReader{forms: map[string]*models.AuthorizationForm{}}
	}
	return NewApplicationService(repo, forms, settler, nil, defaultCommissionConfig(), nil, nil)
}

func TestRequestTransitionHappyPath(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDraft)
	svc := newApplicationService(repo, nil, nil)

	app, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationPending),
		Note:         "forms sent",
	}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthorizationPending, app.Status)
	assert.Equal(t, 2, app.Version)
	require.Len(t, repo.history["app-1"], 1)
	assert.Equal(t, "forms sent", repo.history["app-1"][0].Note)
}

func TestRequestTransitionRejectsSkip(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDraft)
	svc := newApplicationService(repo, nil, nil)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusSubmitted),
	}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestRequestTransitionGatedOnAuthorization(t *testing.T) {
	repo, app := newApplicationFixture(models.StatusAuthorizationPending)
	svc := newApplicationService(repo, nil, nil)
	actor := models.Actor{ID: "agent-1", Role: models.RoleAgent}

	// No form linked at all.
	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationComplete),
	}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	// Form linked but only half signed.
	partial := completeForm()
	partial.RepresentativeSignedBy = nil
	partial.RepresentativeSignedAt = nil
	formID := partial.ID
	app.AuthorizationFormID = &formID
	forms := &mockFormReader{forms: map[string]*models.AuthorizationForm{formID: partial}}
	svc = newApplicationService(repo, forms, nil)

	_, err = svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationComplete),
	}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	// Fully signed form unlocks the transition.
	forms.forms[formID] = completeForm()
	updated, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationComplete),
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthorizationComplete, updated.Status)
}

func TestRequestTransitionSettlesOnMilestone(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDecisionPending)
	settler := &mockSettler{}
	svc := newApplicationService(repo, nil, settler)

	app, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusApproved),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, app.Status)
	require.Len(t, settler.calls, 1)
	assert.Equal(t, models.TriggerEnrollmentConfirmed, settler.calls[0])
}

func TestMilestoneTriggersSurviveConfigOverride(t *testing.T) {
	// Pointing the configured milestone at completed must not displace the
	// service milestone trigger, and approved stays a milestone regardless.
	cfg := defaultCommissionConfig()
	cfg.EnrollmentMilestone = string(models.StatusCompleted)
	actor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	repo, _ := newApplicationFixture(models.StatusApproved)
	settler := &mockSettler{}
	svc := NewApplicationService(repo, &mockFormReader{}, settler, nil, cfg, nil, nil)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusCompleted),
	}, actor)
	require.NoError(t, err)
	require.Len(t, settler.calls, 1)
	assert.Equal(t, models.TriggerServiceMilestone, settler.calls[0])

	cfg.EnrollmentMilestone = ""
	repo, _ = newApplicationFixture(models.StatusDecisionPending)
	settler = &mockSettler{}
	svc = NewApplicationService(repo, &mockFormReader{}, settler, nil, cfg, nil, nil)

	_, err = svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusApproved),
	}, actor)
	require.NoError(t, err)
	require.Len(t, settler.calls, 1)
	assert.Equal(t, models.TriggerEnrollmentConfirmed, settler.calls[0])
}

func TestRequestTransitionSettlementFailureKeepsStatus(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDecisionPending)
	settler := &mockSettler{err: errors.New("settlement store unavailable")}
	svc := newApplicationService(repo, nil, settler)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusApproved),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle the commission explicitly")

	// The transition itself is committed; only the settlement needs recovery.
	assert.Equal(t, models.StatusApproved, repo.apps["app-1"].Status)
}

func TestRequestTransitionSkipsSettlementWithoutFee(t *testing.T) {
	repo, app := newApplicationFixture(models.StatusDecisionPending)
	app.TuitionFeeCents = 0
	settler := &mockSettler{}
	svc := newApplicationService(repo, nil, settler)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusApproved),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, settler.calls)
}

func TestRequestTransitionRetriesVersionConflict(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDraft)
	repo.failUpdates = 2
	svc := newApplicationService(repo, nil, nil)

	app, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationPending),
	}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthorizationPending, app.Status)
	assert.Equal(t, 3, repo.updateCalls)
}

func TestRequestTransitionExhaustsRetries(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDraft)
	repo.failUpdates = maxConflictRetries + 1
	svc := newApplicationService(repo, nil, nil)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationPending),
	}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestTransitionForbidsOtherAgents(t *testing.T) {
	repo, _ := newApplicationFixture(models.StatusDraft)
	svc := newApplicationService(repo, nil, nil)

	_, err := svc.RequestTransition(context.Background(), "app-1", TransitionRequest{
		TargetStatus: string(models.StatusAuthorizationPending),
	}, models.Actor{ID: "agent-2", Role: models.RoleAgent})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestListScopesToActor(t *testing.T) {
	repo := newMockApplicationRepo()
	repo.apps["app-1"] = &models.Application{ID: "app-1", AgentID: "agent-1", ClientID: "client-1", Status: models.StatusDraft, Version: 1}
	repo.apps["app-2"] = &models.Application{ID: "app-2", AgentID: "agent-2", ClientID: "client-2", Status: models.StatusDraft, Version: 1}
	svc := newApplicationService(repo, nil, nil)

	apps, pagination, err := svc.List(context.Background(), models.ApplicationFilter{}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "app-1", apps[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)

	apps, _, err = svc.List(context.Background(), models.ApplicationFilter{}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}
