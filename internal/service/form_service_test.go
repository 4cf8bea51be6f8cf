package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

type mockFormRepo struct {
	forms map[string]*models.AuthorizationForm
}

func newMockFormRepo() *mockFormRepo {
	return &mockFormRepo{forms: make(map[string]*models.AuthorizationForm)}
}

func (m *mockFormRepo) Create(ctx context.Context, form *models.AuthorizationForm, audit *models.AuditLog) error {
	for _, existing := range m.forms {
		if existing.ApplicationID == form.ApplicationID {
			return repository.ErrVersionConflict
		}
	}
	now := time.Now().UTC()
	form.ID = "form-1"
	form.FormRef = "F956-2609-0001"
	form.ExpiresAt = now.AddDate(2, 0, 0)
	form.Version = 1
	stored := *form
	m.forms[form.ID] = &stored
	return nil
}

func (m *mockFormRepo) FindByID(ctx context.Context, id string) (*models.AuthorizationForm, error) {
	if form, ok := m.forms[id]; ok {
		copied := *form
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFormRepo) FindByApplicationID(ctx context.Context, applicationID string) (*models.AuthorizationForm, error) {
	for _, form := range m.forms {
		if form.ApplicationID == applicationID {
			copied := *form
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFormRepo) ApplySignature(ctx context.Context, form *models.AuthorizationForm, role models.SignerRole, sig models.Signature, audit *models.AuditLog) error {
	stored, ok := m.forms[form.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Version != form.Version {
		return repository.ErrVersionConflict
	}
	switch role {
	case models.SignerApplicant:
		if stored.ApplicantSignedBy != nil {
			return repository.ErrVersionConflict
		}
		stored.ApplicantSignedBy = sig.SignedBy
		stored.ApplicantSignedAt = sig.SignedAt
		stored.ApplicantAttestation = sig.Attestation
	case models.SignerRepresentative:
		if stored.RepresentativeSignedBy != nil {
			return repository.ErrVersionConflict
		}
		stored.RepresentativeSignedBy = sig.SignedBy
		stored.RepresentativeSignedAt = sig.SignedAt
		stored.RepresentativeAttestation = sig.Attestation
	}
	stored.Version++
	form.Version++
	return nil
}

type mockRenderer struct{}

func (mockRenderer) RenderAuthorizationForm(form *models.AuthorizationForm, app *models.Application) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

type mockFormNotifier struct {
	completed []string
}

func (m *mockFormNotifier) FormCompleted(form *models.AuthorizationForm, app *models.Application) {
	m.completed = append(m.completed, form.ID)
}

func formFixture(t *testing.T) (*FormService, *mockFormRepo, *mockFormNotifier) {
	t.Helper()
	repo := newMockFormRepo()
	notifier := &mockFormNotifier{}
	app := testApplication()
	app.Status = models.StatusAuthorizationPending
	apps := &mockApplicationReader{apps: map[string]*models.Application{"app-1": app}}
	return NewFormService(repo, apps, mockRenderer{}, notifier, nil, nil), repo, notifier
}

func TestCreateFormOncePerApplication(t *testing.T) {
	svc, _, _ := formFixture(t)
	actor := models.Actor{ID: "agent-1", Role: models.RoleAgent}

	form, err := svc.Create(context.Background(), "app-1", actor)
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusDraft, form.Status)
	assert.Equal(t, "client-1", form.ApplicantID)
	assert.Equal(t, "agent-1", form.RepresentativeID)

	_, err = svc.Create(context.Background(), "app-1", actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSignBothPartiesCompletesForm(t *testing.T) {
	svc, _, notifier := formFixture(t)
	_, err := svc.Create(context.Background(), "app-1", models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)

	view, err := svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerApplicant),
		Attestation: "I authorise the representative to act on my behalf",
	}, models.Actor{ID: "client-1", Role: models.RoleApplicant})
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusAwaitingRepresentative, view.Status)
	assert.Empty(t, notifier.completed)

	view, err = svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerRepresentative),
		Attestation: "I accept the appointment",
	}, models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusComplete, view.Status)
	require.NotNil(t, view.ApplicantSig)
	require.NotNil(t, view.RepresentativeSig)
	assert.Equal(t, "client-1", *view.ApplicantSig.SignedBy)

	// The second signature, and only the second, emits the completion event.
	assert.Equal(t, []string{"form-1"}, notifier.completed)
}

func TestSignSlotOnlyOnce(t *testing.T) {
	svc, _, _ := formFixture(t)
	_, err := svc.Create(context.Background(), "app-1", models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)

	applicant := models.Actor{ID: "client-1", Role: models.RoleApplicant}
	req := SignFormRequest{SignerRole: string(models.SignerApplicant), Attestation: "authorised"}

	_, err = svc.Sign(context.Background(), "app-1", req, applicant)
	require.NoError(t, err)

	_, err = svc.Sign(context.Background(), "app-1", req, applicant)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadySigned.Code, appErrors.FromError(err).Code)
}

func TestSignEnforcesIdentity(t *testing.T) {
	svc, _, _ := formFixture(t)
	_, err := svc.Create(context.Background(), "app-1", models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)

	// The applicant cannot fill the representative slot.
	_, err = svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerRepresentative),
		Attestation: "accepted",
	}, models.Actor{ID: "client-1", Role: models.RoleApplicant})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSignExpiredForm(t *testing.T) {
	svc, repo, _ := formFixture(t)
	_, err := svc.Create(context.Background(), "app-1", models.Actor{ID: "agent-1", Role: models.RoleAgent})
	require.NoError(t, err)
	repo.forms["form-1"].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	_, err = svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerApplicant),
		Attestation: "authorised",
	}, models.Actor{ID: "client-1", Role: models.RoleApplicant})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRenderPDFRequiresCompleteForm(t *testing.T) {
	svc, _, _ := formFixture(t)
	actor := models.Actor{ID: "agent-1", Role: models.RoleAgent}
	_, err := svc.Create(context.Background(), "app-1", actor)
	require.NoError(t, err)

	_, err = svc.RenderPDF(context.Background(), "app-1", actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerApplicant),
		Attestation: "authorised",
	}, models.Actor{ID: "client-1", Role: models.RoleApplicant})
	require.NoError(t, err)
	_, err = svc.Sign(context.Background(), "app-1", SignFormRequest{
		SignerRole:  string(models.SignerRepresentative),
		Attestation: "accepted",
	}, actor)
	require.NoError(t, err)

	payload, err := svc.RenderPDF(context.Background(), "app-1", actor)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
}
