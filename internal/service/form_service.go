package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

type formRepository interface {
	Create(ctx context.Context, form *models.AuthorizationForm, audit *models.AuditLog) error
	FindByApplicationID(ctx context.Context, applicationID string) (*models.AuthorizationForm, error)
	ApplySignature(ctx context.Context, form *models.AuthorizationForm, role models.SignerRole, sig models.Signature, audit *models.AuditLog) error
}

type applicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

type formRenderer interface {
	RenderAuthorizationForm(form *models.AuthorizationForm, app *models.Application) ([]byte, error)
}

type formNotifier interface {
	FormCompleted(form *models.AuthorizationForm, app *models.Application)
}

// SignFormRequest carries one signature for an authorization form slot.
type SignFormRequest struct {
	SignerRole  string `json:"signer_role" validate:"required"`
	Attestation string `json:"attestation" validate:"required,max=2000"`
}

// FormService manages the two-party authorization form workflow.
type FormService struct {
	repo         formRepository
	applications applicationReader
	renderer     formRenderer
	notifier     formNotifier
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewFormService constructs FormService.
func NewFormService(repo formRepository, applications applicationReader, renderer formRenderer, notifier formNotifier, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{repo: repo, applications: applications, renderer: renderer, notifier: notifier, validator: validate, logger: logger}
}

// Create opens the authorization form for an application. At most one form
// exists per application; a second create is rejected.
func (s *FormService) Create(ctx context.Context, applicationID string, actor models.Actor) (*models.AuthorizationFormView, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAgent && app.AgentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another agent")
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application is closed")
	}

	form := &models.AuthorizationForm{
		ApplicationID:    app.ID,
		ApplicantID:      app.ClientID,
		RepresentativeID: app.AgentID,
	}
	audit := formAudit(app.ID, models.AuditEventFormCreated, actor, map[string]interface{}{"application_id": app.ID})
	if err := s.repo.Create(ctx, form, audit); err != nil {
		if repository.IsUniqueViolation(err) || errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application already has an authorization form")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create authorization form")
	}
	audit.EntityID = form.ID
	view := form.View()
	return &view, nil
}

// Get returns the form gating an application, with its derived status.
func (s *FormService) Get(ctx context.Context, applicationID string, actor models.Actor) (*models.AuthorizationFormView, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, app, actor)
	if err != nil {
		return nil, err
	}
	view := form.View()
	return &view, nil
}

// Sign applies one signature to the form. Slots are written exactly once;
// an already-signed slot is never overwritten, and an expired form rejects
// new signatures. A version conflict means the other party signed in between,
// so the slot check is redone against fresh state before retrying.
func (s *FormService) Sign(ctx context.Context, applicationID string, req SignFormRequest, actor models.Actor) (*models.AuthorizationFormView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	role, ok := models.ParseSignerRole(req.SignerRole)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown signer role %q", req.SignerRole))
	}

	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		form, err := s.loadForm(ctx, app, actor)
		if err != nil {
			return nil, err
		}
		if form.Expired(time.Now().UTC()) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "authorization form has expired")
		}
		if err := s.checkSigner(form, role, actor); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		signedBy := actor.ID
		attestation := req.Attestation
		sig := models.Signature{SignedBy: &signedBy, SignedAt: &now, Attestation: &attestation}
		audit := formAudit(form.ID, models.AuditEventFormSigned, actor, map[string]interface{}{
			"application_id": app.ID, "signer_role": role,
		})
		err = s.repo.ApplySignature(ctx, form, role, sig, audit)
		if err == nil {
			s.applySlot(form, role, sig)
			if form.Complete() && s.notifier != nil {
				s.notifier.FormCompleted(form, app)
			}
			view := form.View()
			return &view, nil
		}
		if errors.Is(err, repository.ErrVersionConflict) && attempt < maxConflictRetries {
			continue
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "authorization form changed concurrently, retry the signature")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign authorization form")
	}
}

// RenderPDF produces the printable form once both parties have signed.
func (s *FormService) RenderPDF(ctx context.Context, applicationID string, actor models.Actor) ([]byte, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, app, actor)
	if err != nil {
		return nil, err
	}
	if !form.Complete() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "authorization form is not complete")
	}
	payload, err := s.renderer.RenderAuthorizationForm(form, app)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render authorization form")
	}
	return payload, nil
}

// checkSigner enforces slot occupancy and signer identity.
func (s *FormService) checkSigner(form *models.AuthorizationForm, role models.SignerRole, actor models.Actor) error {
	switch role {
	case models.SignerApplicant:
		if form.ApplicantSignature().Set() {
			return appErrors.Clone(appErrors.ErrAlreadySigned, "applicant has already signed")
		}
		if actor.Role != models.RoleAdmin && actor.ID != form.ApplicantID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the applicant can sign this slot")
		}
	case models.SignerRepresentative:
		if form.RepresentativeSignature().Set() {
			return appErrors.Clone(appErrors.ErrAlreadySigned, "representative has already signed")
		}
		if actor.Role != models.RoleAdmin && actor.ID != form.RepresentativeID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the registered representative can sign this slot")
		}
	}
	return nil
}

// applySlot mirrors the committed signature onto the in-memory form.
func (s *FormService) applySlot(form *models.AuthorizationForm, role models.SignerRole, sig models.Signature) {
	switch role {
	case models.SignerApplicant:
		form.ApplicantSignedBy = sig.SignedBy
		form.ApplicantSignedAt = sig.SignedAt
		form.ApplicantAttestation = sig.Attestation
	case models.SignerRepresentative:
		form.RepresentativeSignedBy = sig.SignedBy
		form.RepresentativeSignedAt = sig.SignedAt
		form.RepresentativeAttestation = sig.Attestation
	}
}

func (s *FormService) loadApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *FormService) loadForm(ctx context.Context, app *models.Application, actor models.Actor) (*models.AuthorizationForm, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleAgent:
		if app.AgentID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another agent")
		}
	case models.RoleApplicant:
		if app.ClientID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this application")
		}
	}
	form, err := s.repo.FindByApplicationID(ctx, app.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "authorization form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load authorization form")
	}
	return form, nil
}

func formAudit(entityID, event string, actor models.Actor, details map[string]interface{}) *models.AuditLog {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = nil
	}
	return &models.AuditLog{
		EntityType: "authorization_form",
		EntityID:   entityID,
		Event:      event,
		ActorID:    actor.ID,
		Details:    payload,
	}
}
