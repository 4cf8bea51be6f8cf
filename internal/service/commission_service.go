package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/repository"
	"github.com/ozpath/ozpath-api/pkg/config"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

const bpsScale = 10000

type commissionRepository interface {
	CreateSettlement(ctx context.Context, record *models.CommissionRecord, audit *models.AuditLog) (bool, error)
	FindByID(ctx context.Context, id string) (*models.CommissionRecord, error)
	FindByTrigger(ctx context.Context, applicationID string, trigger models.TriggerType) (*models.CommissionRecord, error)
	List(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, int, error)
	ListAttempts(ctx context.Context, recordID string) ([]models.PayoutAttempt, error)
	ResolveAttempt(ctx context.Context, attemptID string, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error)
	CreateRetryAttempt(ctx context.Context, attempt *models.PayoutAttempt, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error)
}

type payoutNotifier interface {
	CommissionSettled(record *models.CommissionRecord)
	PayoutRecorded(attempt *models.PayoutAttempt)
}

// SettleRequest triggers an explicit settlement for an application. The
// commissionable amount is supplied by the caller when it differs from the
// recorded tuition fee, e.g. a college commission.
type SettleRequest struct {
	ApplicationID    string `json:"application_id" validate:"required"`
	TriggerType      string `json:"trigger_type" validate:"required"`
	TotalAmountCents *int64 `json:"total_amount_cents" validate:"omitempty,gt=0"`
}

// RecordPayoutRequest records the outcome of one payout attempt.
type RecordPayoutRequest struct {
	RecipientRole     string  `json:"recipient_role" validate:"required"`
	Outcome           string  `json:"outcome" validate:"required,oneof=paid failed"`
	ExternalReference *string `json:"external_reference" validate:"omitempty,max=255"`
}

// SettleResult pairs the record with whether this call created it.
type SettleResult struct {
	Record  *models.CommissionRecord
	Created bool
}

// CommissionService computes the three-way split, settles commission records
// idempotently and keeps the payout ledger.
type CommissionService struct {
	repo         commissionRepository
	applications applicationReader
	notifier     payoutNotifier
	cfg          config.CommissionConfig
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCommissionService constructs CommissionService.
func NewCommissionService(repo commissionRepository, applications applicationReader, notifier payoutNotifier, cfg config.CommissionConfig, validate *validator.Validate, logger *zap.Logger) *CommissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommissionService{repo: repo, applications: applications, notifier: notifier, cfg: cfg, validator: validate, logger: logger}
}

// Settle settles the commission for an application and trigger. Calling it
// again with the same pair returns the existing record unchanged.
func (s *CommissionService) Settle(ctx context.Context, req SettleRequest, actor models.Actor) (*SettleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settlement payload")
	}
	trigger, ok := models.ParseTriggerType(req.TriggerType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown trigger type %q", req.TriggerType))
	}
	app, err := s.applications.FindByID(ctx, req.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	total := app.TuitionFeeCents
	if req.TotalAmountCents != nil {
		total = *req.TotalAmountCents
	}
	if total <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application has no commissionable amount")
	}
	record, created, err := s.settle(ctx, app, trigger, total, actor)
	if err != nil {
		return nil, err
	}
	return &SettleResult{Record: record, Created: created}, nil
}

// SettleMilestone settles the split for a milestone trigger. The unique key on
// (application, trigger) makes this safe to call from retried transitions: a
// duplicate settles to the already-existing record.
func (s *CommissionService) SettleMilestone(ctx context.Context, app *models.Application, trigger models.TriggerType, actor models.Actor) (*models.CommissionRecord, error) {
	record, _, err := s.settle(ctx, app, trigger, app.TuitionFeeCents, actor)
	return record, err
}

func (s *CommissionService) settle(ctx context.Context, app *models.Application, trigger models.TriggerType, totalCents int64, actor models.Actor) (*models.CommissionRecord, bool, error) {
	record, err := s.buildRecord(app, trigger, totalCents, actor)
	if err != nil {
		return nil, false, err
	}
	audit := commissionAudit(record.ID, models.AuditEventCommissionSettled, actor, map[string]interface{}{
		"application_id": app.ID,
		"trigger_type":   trigger,
		"total_cents":    record.TotalAmountCents,
	})
	created, err := s.repo.CreateSettlement(ctx, record, audit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle commission")
	}
	if !created {
		existing, err := s.repo.FindByTrigger(ctx, app.ID, trigger)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing settlement")
		}
		return existing, false, nil
	}
	s.logger.Info("commission settled",
		zap.String("application_id", app.ID),
		zap.String("commission_record_id", record.ID),
		zap.String("trigger", string(trigger)),
		zap.Int64("total_cents", record.TotalAmountCents))
	if s.notifier != nil {
		s.notifier.CommissionSettled(record)
	}
	return record, true, nil
}

// Get returns a commission record with its ledger and aggregate view.
func (s *CommissionService) Get(ctx context.Context, id string, actor models.Actor) (*models.CommissionDetail, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "commission record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load commission record")
	}
	if err := s.canView(ctx, record, actor); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payout ledger")
	}
	return &models.CommissionDetail{
		CommissionRecord: *record,
		Distribution:     record.Distribution(),
		Attempts:         attempts,
		Aggregate:        models.DerivePayoutStatus(attempts),
	}, nil
}

// List returns commission records matching the filter.
func (s *CommissionService) List(ctx context.Context, filter models.CommissionFilter, actor models.Actor) ([]models.CommissionRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list commission records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListAll walks every page of commission records matching the filter. Used by
// the export path, which must not truncate.
func (s *CommissionService) ListAll(ctx context.Context, filter models.CommissionFilter, actor models.Actor) ([]models.CommissionRecord, error) {
	filter.Page = 1
	filter.PageSize = 100
	var all []models.CommissionRecord
	for {
		records, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list commission records")
		}
		all = append(all, records...)
		if len(records) == 0 || len(all) >= total {
			return all, nil
		}
		filter.Page++
	}
}

// RecordPayout records the outcome of paying one distribution share. A share
// that already has a paid attempt is never paid again; a failed share gets a
// fresh attempt.
func (s *CommissionService) RecordPayout(ctx context.Context, recordID string, req RecordPayoutRequest, actor models.Actor) (*models.PayoutAttempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payout payload")
	}
	role, ok := models.ParseRecipientRole(req.RecipientRole)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown recipient role %q", req.RecipientRole))
	}
	outcome := models.AttemptStatus(req.Outcome)

	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "commission record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load commission record")
	}
	attempts, err := s.repo.ListAttempts(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payout ledger")
	}

	var open *models.PayoutAttempt
	for i := range attempts {
		attempt := &attempts[i]
		if attempt.RecipientRole != role {
			continue
		}
		switch attempt.Status {
		case models.AttemptPaid:
			return nil, appErrors.Clone(appErrors.ErrAlreadyPaid,
				fmt.Sprintf("%s share has already been paid", role))
		case models.AttemptPending:
			open = attempt
		}
	}

	audit := commissionAudit(record.ID, models.AuditEventPayoutRecorded, actor, map[string]interface{}{
		"recipient_role": role, "outcome": outcome,
	})

	var resolved *models.PayoutAttempt
	if open != nil {
		resolved, err = s.repo.ResolveAttempt(ctx, open.ID, outcome, req.ExternalReference, audit)
	} else {
		retry := &models.PayoutAttempt{
			CommissionRecordID: record.ID,
			RecipientRole:      role,
			AmountCents:        record.ShareFor(role),
		}
		resolved, err = s.repo.CreateRetryAttempt(ctx, retry, outcome, req.ExternalReference, audit)
	}
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payout was recorded concurrently, reload the ledger")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payout")
	}
	if s.notifier != nil {
		s.notifier.PayoutRecorded(resolved)
	}
	return resolved, nil
}

// buildRecord computes the three-way split with integer arithmetic. Agent and
// applicant shares round half up; the platform absorbs the remainder so the
// legs always sum exactly to the total.
func (s *CommissionService) buildRecord(app *models.Application, trigger models.TriggerType, totalCents int64, actor models.Actor) (*models.CommissionRecord, error) {
	platformBps := toBasisPoints(s.cfg.PlatformRate)
	agentBps := toBasisPoints(s.cfg.AgentRate)
	applicantBps := toBasisPoints(s.cfg.ApplicantRate)
	if platformBps < 0 || agentBps < 0 || applicantBps < 0 || platformBps+agentBps+applicantBps != bpsScale {
		return nil, appErrors.Clone(appErrors.ErrInvalidRates,
			fmt.Sprintf("commission rates must be non-negative and sum to 100%%, got %.2f/%.2f/%.2f",
				s.cfg.PlatformRate, s.cfg.AgentRate, s.cfg.ApplicantRate))
	}

	total := totalCents
	agentCents := roundShare(total, agentBps)
	applicantCents := roundShare(total, applicantBps)
	platformCents := total - agentCents - applicantCents

	currency := app.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	return &models.CommissionRecord{
		ApplicationID:        app.ID,
		TriggerType:          trigger,
		TotalAmountCents:     total,
		Currency:             currency,
		PlatformRateBps:      platformBps,
		PlatformAmountCents:  platformCents,
		AgentRateBps:         agentBps,
		AgentAmountCents:     agentCents,
		ApplicantRateBps:     applicantBps,
		ApplicantAmountCents: applicantCents,
		TriggeredBy:          actor.ID,
	}, nil
}

func (s *CommissionService) canView(ctx context.Context, record *models.CommissionRecord, actor models.Actor) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	app, err := s.applications.FindByID(ctx, record.ApplicationID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor.Role == models.RoleAgent && app.AgentID == actor.ID {
		return nil
	}
	if actor.Role == models.RoleApplicant && app.ClientID == actor.ID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "no access to this commission record")
}

// toBasisPoints converts a percentage rate to basis points.
func toBasisPoints(rate float64) int64 {
	return int64(math.Round(rate * 100))
}

// roundShare computes total*bps/10000 rounded half up.
func roundShare(totalCents, bps int64) int64 {
	return (totalCents*bps + bpsScale/2) / bpsScale
}

func commissionAudit(entityID, event string, actor models.Actor, details map[string]interface{}) *models.AuditLog {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = nil
	}
	return &models.AuditLog{
		EntityType: "commission_record",
		EntityID:   entityID,
		Event:      event,
		ActorID:    actor.ID,
		Details:    payload,
	}
}
