package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	"github.com/ozpath/ozpath-api/pkg/config"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

// maxConflictRetries bounds optimistic-lock retry loops.
const maxConflictRetries = 3

type applicationRepository interface {
	Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry, audit *models.AuditLog) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error)
	UpdateStatus(ctx context.Context, app *models.Application, target models.ApplicationStatus, entry *models.StatusHistoryEntry, audit *models.AuditLog) error
}

type formReader interface {
	FindByID(ctx context.Context, id string) (*models.AuthorizationForm, error)
}

type milestoneSettler interface {
	SettleMilestone(ctx context.Context, app *models.Application, trigger models.TriggerType, actor models.Actor) (*models.CommissionRecord, error)
}

type milestoneNotifier interface {
	ApplicationMilestone(app *models.Application, status models.ApplicationStatus)
}

// CreateApplicationRequest describes application creation.
type CreateApplicationRequest struct {
	ClientID        string `json:"client_id" validate:"required"`
	AgentID         string `json:"agent_id" validate:"required"`
	TuitionFeeCents int64  `json:"tuition_fee_cents" validate:"gte=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
}

// TransitionRequest describes a status transition.
type TransitionRequest struct {
	TargetStatus string `json:"target_status" validate:"required"`
	Note         string `json:"note" validate:"max=2000"`
}

// ApplicationService owns the application status state machine.
type ApplicationService struct {
	repo      applicationRepository
	forms     formReader
	settler   milestoneSettler
	notifier  milestoneNotifier
	triggers  map[models.ApplicationStatus]models.TriggerType
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs ApplicationService. Milestone statuses map
// to commission trigger types; the enrollment milestone is configurable.
func NewApplicationService(repo applicationRepository, forms formReader, settler milestoneSettler, notifier milestoneNotifier, cfg config.CommissionConfig, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	triggers := map[models.ApplicationStatus]models.TriggerType{
		models.StatusApproved:  models.TriggerEnrollmentConfirmed,
		models.StatusCompleted: models.TriggerServiceMilestone,
	}
	if ms := models.ApplicationStatus(cfg.EnrollmentMilestone); ms.Valid() {
		if _, fixed := triggers[ms]; !fixed {
			triggers[ms] = models.TriggerEnrollmentConfirmed
		}
	}
	return &ApplicationService{
		repo:      repo,
		forms:     forms,
		settler:   settler,
		notifier:  notifier,
		triggers:  triggers,
		validator: validate,
		logger:    logger,
	}
}

// Create opens a draft application.
func (s *ApplicationService) Create(ctx context.Context, req CreateApplicationRequest, actor models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	if actor.Role == models.RoleAgent && actor.ID != req.AgentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "agents can only open applications they represent")
	}
	currency := req.Currency
	if currency == "" {
		currency = "AUD"
	}
	app := &models.Application{
		ClientID:        req.ClientID,
		AgentID:         req.AgentID,
		Status:          models.StatusDraft,
		TuitionFeeCents: req.TuitionFeeCents,
		Currency:        currency,
	}
	entry := &models.StatusHistoryEntry{Status: models.StatusDraft, ActorID: actor.ID, ActorRole: actor.Role, Note: "application created"}
	audit := s.auditLog("application", app, models.AuditEventApplicationCreated, actor, map[string]interface{}{"client_id": req.ClientID})
	if err := s.repo.Create(ctx, app, entry, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	audit.EntityID = app.ID
	return app, nil
}

// Get returns a single application, enforcing participant visibility.
func (s *ApplicationService) Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(app, actor); err != nil {
		return nil, err
	}
	return app, nil
}

// List returns applications with pagination metadata. Non-admin callers are
// narrowed to their own applications.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter, actor models.Actor) ([]models.Application, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleAgent:
		filter.AgentID = actor.ID
	case models.RoleApplicant:
		filter.ClientID = actor.ID
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Timeline returns the append-only status history.
func (s *ApplicationService) Timeline(ctx context.Context, id string, actor models.Actor) ([]models.StatusHistoryEntry, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(app, actor); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeline")
	}
	return entries, nil
}

// RequestTransition validates and applies a status transition, settling the
// commission when the target is a milestone. Version conflicts are retried a
// bounded number of times with full revalidation on each pass.
func (s *ApplicationService) RequestTransition(ctx context.Context, id string, req TransitionRequest, actor models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	target := models.ApplicationStatus(req.TargetStatus)
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.TargetStatus))
	}

	var app *models.Application
	for attempt := 0; ; attempt++ {
		var err error
		app, err = s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if actor.Role == models.RoleAgent && app.AgentID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another agent")
		}
		if !app.Status.CanTransitionTo(target) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot transition from %s to %s", app.Status, target))
		}
		if target.RequiresCompleteAuthorization() {
			if err := s.checkAuthorization(ctx, app); err != nil {
				return nil, err
			}
		}

		entry := &models.StatusHistoryEntry{Status: target, ActorID: actor.ID, ActorRole: actor.Role, Note: req.Note}
		audit := s.auditLog("application", app, models.AuditEventStatusChanged, actor, map[string]interface{}{
			"from": app.Status, "to": target, "note": req.Note,
		})
		err = s.repo.UpdateStatus(ctx, app, target, entry, audit)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrVersionConflict) && attempt < maxConflictRetries {
			continue
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application changed concurrently, retry the transition")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	if trigger, ok := s.triggers[target]; ok {
		if s.notifier != nil {
			s.notifier.ApplicationMilestone(app, target)
		}
		if s.settler != nil && app.TuitionFeeCents > 0 {
			if _, err := s.settler.SettleMilestone(ctx, app, trigger, actor); err != nil {
				// The status is committed at this point and settlement is
				// idempotent, so an explicit settle call recovers.
				s.logger.Error("milestone settlement failed",
					zap.String("application_id", app.ID), zap.String("trigger", string(trigger)), zap.Error(err))
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
					fmt.Sprintf("status updated to %s but commission settlement failed; settle the commission explicitly to retry", target))
			}
		}
	}
	return app, nil
}

func (s *ApplicationService) checkAuthorization(ctx context.Context, app *models.Application) error {
	if app.AuthorizationFormID == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "authorization form has not been created")
	}
	form, err := s.forms.FindByID(ctx, *app.AuthorizationFormID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "authorization form has not been created")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load authorization form")
	}
	if !form.Complete() {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("authorization form is %s, both signatures are required", form.Status()))
	}
	return nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) canView(app *models.Application, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleAgent:
		if app.AgentID == actor.ID {
			return nil
		}
	case models.RoleApplicant:
		if app.ClientID == actor.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "no access to this application")
}

func (s *ApplicationService) auditLog(entityType string, app *models.Application, event string, actor models.Actor, details map[string]interface{}) *models.AuditLog {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = nil
	}
	return &models.AuditLog{
		EntityType: entityType,
		EntityID:   app.ID,
		Event:      event,
		ActorID:    actor.ID,
		Details:    payload,
	}
}
