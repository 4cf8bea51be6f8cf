package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/pkg/config"
	"github.com/ozpath/ozpath-api/pkg/jobs"
)

// Notification job types.
const (
	jobApplicationMilestone = "application.milestone"
	jobFormCompleted        = "form.completed"
	jobCommissionSettled    = "commission.settled"
	jobPayoutRecorded       = "payout.recorded"
)

// NotifierService dispatches workflow events to participants on a background
// queue. Delivery is fire-and-forget: a dropped notification never blocks or
// fails the mutation that produced it.
type NotifierService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotifierService constructs the notifier and its queue. The returned
// service is inert until Start is called.
func NewNotifierService(cfg config.NotificationsConfig, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotifierService{logger: logger}
	if !cfg.Enabled {
		return s
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.Options{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, logger)
	return s
}

// Start launches the dispatch workers.
func (s *NotifierService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains the dispatch workers.
func (s *NotifierService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// ApplicationMilestone notifies participants that an application reached a
// milestone status.
func (s *NotifierService) ApplicationMilestone(app *models.Application, status models.ApplicationStatus) {
	s.enqueue(jobApplicationMilestone, map[string]interface{}{
		"application_id":  app.ID,
		"application_ref": app.ApplicationRef,
		"client_id":       app.ClientID,
		"agent_id":        app.AgentID,
		"status":          status,
	})
}

// FormCompleted notifies both parties that the authorization form collected
// its second signature.
func (s *NotifierService) FormCompleted(form *models.AuthorizationForm, app *models.Application) {
	s.enqueue(jobFormCompleted, map[string]interface{}{
		"form_id":         form.ID,
		"form_ref":        form.FormRef,
		"application_id":  form.ApplicationID,
		"application_ref": app.ApplicationRef,
		"client_id":       app.ClientID,
		"agent_id":        app.AgentID,
	})
}

// CommissionSettled notifies the agent that their commission has settled.
func (s *NotifierService) CommissionSettled(record *models.CommissionRecord) {
	s.enqueue(jobCommissionSettled, map[string]interface{}{
		"commission_record_id": record.ID,
		"application_id":       record.ApplicationID,
		"trigger_type":         record.TriggerType,
		"total_amount_cents":   record.TotalAmountCents,
	})
}

// PayoutRecorded notifies the recipient of a payout outcome.
func (s *NotifierService) PayoutRecorded(attempt *models.PayoutAttempt) {
	s.enqueue(jobPayoutRecorded, map[string]interface{}{
		"commission_record_id": attempt.CommissionRecordID,
		"recipient_role":       attempt.RecipientRole,
		"status":               attempt.Status,
		"amount_cents":         attempt.AmountCents,
	})
}

func (s *NotifierService) enqueue(jobType string, payload map[string]interface{}) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification dropped", zap.String("type", jobType), zap.Error(err))
	}
}

// deliver is the queue handler. The transport is a structured log line until
// an email or push provider is wired in.
// TODO: plug in the transactional email provider once the account is provisioned.
func (s *NotifierService) deliver(_ context.Context, job jobs.Job) error {
	s.logger.Info("notification dispatched",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Any("payload", job.Payload))
	return nil
}
