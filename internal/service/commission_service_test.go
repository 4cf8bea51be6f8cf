package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	"github.com/ozpath/ozpath-api/pkg/config"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

func defaultCommissionConfig() config.CommissionConfig {
	return config.CommissionConfig{
		PlatformRate:        70,
		AgentRate:           25,
		ApplicantRate:       5,
		Currency:            "AUD",
		EnrollmentMilestone: "approved",
	}
}

type mockCommissionRepo struct {
	records   map[string]*models.CommissionRecord
	order     []string
	attempts  []models.PayoutAttempt
	nextID    int
	listCalls int
}

func newMockCommissionRepo() *mockCommissionRepo {
	return &mockCommissionRepo{records: make(map[string]*models.CommissionRecord)}
}

func settlementKey(applicationID string, trigger models.TriggerType) string {
	return applicationID + "|" + string(trigger)
}

func (m *mockCommissionRepo) CreateSettlement(ctx context.Context, record *models.CommissionRecord, audit *models.AuditLog) (bool, error) {
	key := settlementKey(record.ApplicationID, record.TriggerType)
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.nextID++
	record.ID = fmt.Sprintf("rec-%d", m.nextID)
	record.PayoutStatus = models.PayoutStatusPending
	record.Version = 1
	stored := *record
	m.records[key] = &stored
	m.order = append(m.order, key)
	for _, share := range record.Distribution() {
		m.nextID++
		m.attempts = append(m.attempts, models.PayoutAttempt{
			ID:                 fmt.Sprintf("att-%d", m.nextID),
			CommissionRecordID: record.ID,
			RecipientRole:      share.Role,
			AmountCents:        share.AmountCents,
			Status:             models.AttemptPending,
		})
	}
	return true, nil
}

func (m *mockCommissionRepo) FindByID(ctx context.Context, id string) (*models.CommissionRecord, error) {
	for _, record := range m.records {
		if record.ID == id {
			copied := *record
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommissionRepo) FindByTrigger(ctx context.Context, applicationID string, trigger models.TriggerType) (*models.CommissionRecord, error) {
	if record, ok := m.records[settlementKey(applicationID, trigger)]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommissionRepo) List(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, int, error) {
	m.listCalls++
	var all []models.CommissionRecord
	for _, key := range m.order {
		all = append(all, *m.records[key])
	}
	total := len(all)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *mockCommissionRepo) ListAttempts(ctx context.Context, recordID string) ([]models.PayoutAttempt, error) {
	var result []models.PayoutAttempt
	for _, attempt := range m.attempts {
		if attempt.CommissionRecordID == recordID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

func (m *mockCommissionRepo) ResolveAttempt(ctx context.Context, attemptID string, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error) {
	for i := range m.attempts {
		if m.attempts[i].ID != attemptID {
			continue
		}
		if m.attempts[i].Status != models.AttemptPending {
			return nil, repository.ErrVersionConflict
		}
		m.attempts[i].Status = outcome
		m.attempts[i].ExternalReference = externalRef
		if outcome == models.AttemptPaid {
			now := time.Now().UTC()
			m.attempts[i].PaidAt = &now
		}
		copied := m.attempts[i]
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommissionRepo) CreateRetryAttempt(ctx context.Context, attempt *models.PayoutAttempt, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error) {
	for _, existing := range m.attempts {
		if existing.CommissionRecordID == attempt.CommissionRecordID &&
			existing.RecipientRole == attempt.RecipientRole &&
			existing.Status != models.AttemptFailed {
			return nil, repository.ErrVersionConflict
		}
	}
	m.nextID++
	attempt.ID = fmt.Sprintf("att-%d", m.nextID)
	attempt.Status = outcome
	attempt.ExternalReference = externalRef
	m.attempts = append(m.attempts, *attempt)
	copied := *attempt
	return &copied, nil
}

type mockApplicationReader struct {
	apps map[string]*models.Application
}

func (m *mockApplicationReader) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.apps[id]; ok {
		copied := *app
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func testApplication() *models.Application {
	return &models.Application{
		ID:              "app-1",
		ApplicationRef:  "APP2609010001",
		ClientID:        "client-1",
		AgentID:         "agent-1",
		Status:          models.StatusApproved,
		TuitionFeeCents: 1000000,
		Currency:        "AUD",
		Version:         3,
	}
}

func newCommissionService(repo *mockCommissionRepo, apps *mockApplicationReader, cfg config.CommissionConfig) *CommissionService {
	return NewCommissionService(repo, apps, nil, cfg, nil, nil)
}

func TestSettleSplitsThreeWays(t *testing.T) {
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())

	result, err := svc.Settle(context.Background(), SettleRequest{
		ApplicationID: "app-1",
		TriggerType:   string(models.TriggerEnrollmentConfirmed),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.True(t, result.Created)

	record := result.Record
	assert.Equal(t, int64(1000000), record.TotalAmountCents)
	assert.Equal(t, int64(700000), record.PlatformAmountCents)
	assert.Equal(t, int64(250000), record.AgentAmountCents)
	assert.Equal(t, int64(50000), record.ApplicantAmountCents)
	assert.Equal(t, int64(7000), record.PlatformRateBps)
	assert.Equal(t, int64(2500), record.AgentRateBps)
	assert.Equal(t, int64(500), record.ApplicantRateBps)
	assert.Equal(t, models.PayoutStatusPending, record.PayoutStatus)

	attempts, err := repo.ListAttempts(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}

func TestSettlePlatformAbsorbsRemainder(t *testing.T) {
	repo := newMockCommissionRepo()
	app := testApplication()
	app.TuitionFeeCents = 101
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": app}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())

	result, err := svc.Settle(context.Background(), SettleRequest{
		ApplicationID: "app-1",
		TriggerType:   string(models.TriggerServiceMilestone),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)

	record := result.Record
	assert.Equal(t, int64(25), record.AgentAmountCents)
	assert.Equal(t, int64(5), record.ApplicantAmountCents)
	assert.Equal(t, int64(71), record.PlatformAmountCents)
	assert.Equal(t, record.TotalAmountCents,
		record.PlatformAmountCents+record.AgentAmountCents+record.ApplicantAmountCents)
}

func TestSettleIsIdempotent(t *testing.T) {
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())

	req := SettleRequest{ApplicationID: "app-1", TriggerType: string(models.TriggerEnrollmentConfirmed)}
	actor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	first, err := svc.Settle(context.Background(), req, actor)
	require.NoError(t, err)
	second, err := svc.Settle(context.Background(), req, actor)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Len(t, repo.attempts, 3)
}

func TestSettleUsesExplicitAmount(t *testing.T) {
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())

	// The college commission being settled is not the recorded tuition fee.
	amount := int64(50000)
	result, err := svc.Settle(context.Background(), SettleRequest{
		ApplicationID:    "app-1",
		TriggerType:      string(models.TriggerTuitionPaid),
		TotalAmountCents: &amount,
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)

	record := result.Record
	assert.Equal(t, int64(50000), record.TotalAmountCents)
	assert.Equal(t, int64(35000), record.PlatformAmountCents)
	assert.Equal(t, int64(12500), record.AgentAmountCents)
	assert.Equal(t, int64(2500), record.ApplicantAmountCents)
}

func TestListAllPagesThroughLedger(t *testing.T) {
	repo := newMockCommissionRepo()
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("app-%03d|%s", i, models.TriggerEnrollmentConfirmed)
		repo.records[key] = &models.CommissionRecord{
			ID:            fmt.Sprintf("rec-%03d", i),
			ApplicationID: fmt.Sprintf("app-%03d", i),
			TriggerType:   models.TriggerEnrollmentConfirmed,
		}
		repo.order = append(repo.order, key)
	}
	svc := newCommissionService(repo, &mockApplicationReader{}, defaultCommissionConfig())

	records, err := svc.ListAll(context.Background(), models.CommissionFilter{}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, records, 150)
	assert.Equal(t, 2, repo.listCalls)
	assert.Equal(t, "rec-000", records[0].ID)
	assert.Equal(t, "rec-149", records[149].ID)
}

func TestSettleRejectsBadRates(t *testing.T) {
	cfg := defaultCommissionConfig()
	cfg.ApplicantRate = 10
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, cfg)

	_, err := svc.Settle(context.Background(), SettleRequest{
		ApplicationID: "app-1",
		TriggerType:   string(models.TriggerEnrollmentConfirmed),
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRates.Code, appErrors.FromError(err).Code)
}

func TestRecordPayoutLifecycle(t *testing.T) {
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())
	actor := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	result, err := svc.Settle(context.Background(), SettleRequest{
		ApplicationID: "app-1",
		TriggerType:   string(models.TriggerEnrollmentConfirmed),
	}, actor)
	require.NoError(t, err)
	recordID := result.Record.ID

	ref := "bank-001"
	attempt, err := svc.RecordPayout(context.Background(), recordID, RecordPayoutRequest{
		RecipientRole:     string(models.RecipientAgent),
		Outcome:           "paid",
		ExternalReference: &ref,
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPaid, attempt.Status)
	assert.Equal(t, int64(250000), attempt.AmountCents)

	// Paying the same share twice is rejected.
	_, err = svc.RecordPayout(context.Background(), recordID, RecordPayoutRequest{
		RecipientRole: string(models.RecipientAgent),
		Outcome:       "paid",
	}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyPaid.Code, appErrors.FromError(err).Code)

	// A failed share can be retried with a fresh attempt.
	_, err = svc.RecordPayout(context.Background(), recordID, RecordPayoutRequest{
		RecipientRole: string(models.RecipientApplicant),
		Outcome:       "failed",
	}, actor)
	require.NoError(t, err)

	retry, err := svc.RecordPayout(context.Background(), recordID, RecordPayoutRequest{
		RecipientRole: string(models.RecipientApplicant),
		Outcome:       "paid",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPaid, retry.Status)

	attempts, err := svc.repo.ListAttempts(context.Background(), recordID)
	require.NoError(t, err)
	assert.Len(t, attempts, 4)
	assert.Equal(t, models.PayoutStatusPartial, models.DerivePayoutStatus(attempts).Status)
}

func TestRecordPayoutUnknownRole(t *testing.T) {
	repo := newMockCommissionRepo()
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": testApplication()}}
	svc := newCommissionService(repo, apps, defaultCommissionConfig())

	_, err := svc.RecordPayout(context.Background(), "rec-1", RecordPayoutRequest{
		RecipientRole: "referrer",
		Outcome:       "paid",
	}, models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
