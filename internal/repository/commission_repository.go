package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
)

// CommissionRepository handles persistence of commission records and their
// payout ledger.
type CommissionRepository struct {
	db *sqlx.DB
}

// NewCommissionRepository constructs the repository.
func NewCommissionRepository(db *sqlx.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

const commissionColumns = `id, tenant_id, application_id, trigger_type, transaction_ref,
        total_amount_cents, currency,
        platform_rate_bps, platform_amount_cents, agent_rate_bps, agent_amount_cents,
        applicant_rate_bps, applicant_amount_cents,
        payout_status, triggered_by, triggered_at, version, created_at, updated_at`

const attemptColumns = `id, tenant_id, commission_record_id, recipient_role, amount_cents,
        status, external_reference, paid_at, created_at, updated_at`

// newTransactionRef mirrors the TXN-<epoch>-<rand> reference scheme.
func newTransactionRef(now time.Time) string {
	return fmt.Sprintf("TXN-%d-%06d", now.UnixMilli(), rand.Intn(1000000))
}

// CreateSettlement inserts the record, its three pending payout attempts, the
// application back-reference and the audit row in one transaction. The unique
// key on (tenant, application, trigger) makes settlement idempotent: when a
// record already exists nothing is written and created is false.
func (r *CommissionRepository) CreateSettlement(ctx context.Context, record *models.CommissionRecord, audit *models.AuditLog) (created bool, err error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.TransactionRef == "" {
		record.TransactionRef = newTransactionRef(now)
	}
	record.TenantID = tenantID
	record.PayoutStatus = models.PayoutStatusPending
	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.TriggeredAt.IsZero() {
		record.TriggeredAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO commission_records (` + commissionColumns + `)
        VALUES (:id, :tenant_id, :application_id, :trigger_type, :transaction_ref,
        :total_amount_cents, :currency,
        :platform_rate_bps, :platform_amount_cents, :agent_rate_bps, :agent_amount_cents,
        :applicant_rate_bps, :applicant_amount_cents,
        :payout_status, :triggered_by, :triggered_at, :version, :created_at, :updated_at)
        ON CONFLICT (tenant_id, application_id, trigger_type) DO NOTHING`
	res, err := tx.NamedExecContext(ctx, insert, record)
	if err != nil {
		return false, fmt.Errorf("create commission record: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("create commission record: %w", err)
	} else if affected == 0 {
		// Duplicate trigger: the existing record wins, nothing to write.
		return false, nil
	}

	for _, share := range record.Distribution() {
		attempt := models.PayoutAttempt{
			ID:                 uuid.NewString(),
			TenantID:           tenantID,
			CommissionRecordID: record.ID,
			RecipientRole:      share.Role,
			AmountCents:        share.AmountCents,
			Status:             models.AttemptPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := insertAttempt(ctx, tx, &attempt); err != nil {
			return false, err
		}
	}

	const link = `UPDATE applications SET commission_record_id = $1, updated_at = $2
        WHERE id = $3 AND tenant_id = $4 AND commission_record_id IS NULL`
	if _, err := tx.ExecContext(ctx, link, record.ID, now, record.ApplicationID, tenantID); err != nil {
		return false, fmt.Errorf("link commission record: %w", err)
	}

	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit settlement: %w", err)
	}
	return true, nil
}

// FindByID returns a commission record within the caller's tenant scope.
func (r *CommissionRepository) FindByID(ctx context.Context, id string) (*models.CommissionRecord, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + commissionColumns + ` FROM commission_records WHERE id = $1 AND tenant_id = $2`
	var record models.CommissionRecord
	if err := r.db.GetContext(ctx, &record, query, id, tenantID); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByTrigger returns the record for an idempotency key, if any.
func (r *CommissionRepository) FindByTrigger(ctx context.Context, applicationID string, trigger models.TriggerType) (*models.CommissionRecord, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + commissionColumns + ` FROM commission_records
        WHERE application_id = $1 AND trigger_type = $2 AND tenant_id = $3`
	var record models.CommissionRecord
	if err := r.db.GetContext(ctx, &record, query, applicationID, trigger, tenantID); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns commission records filtered by the provided criteria.
func (r *CommissionRepository) List(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	if filter.ApplicationID != "" {
		conditions = append(conditions, fmt.Sprintf("application_id = $%d", len(args)+1))
		args = append(args, filter.ApplicationID)
	}
	if filter.PayoutStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payout_status = $%d", len(args)+1))
		args = append(args, filter.PayoutStatus)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT `+commissionColumns+` FROM commission_records%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		clause, size, offset)
	var records []models.CommissionRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list commission records: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM commission_records" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count commission records: %w", err)
	}
	return records, total, nil
}

// ListAttempts returns the payout ledger for a commission record.
func (r *CommissionRepository) ListAttempts(ctx context.Context, recordID string) ([]models.PayoutAttempt, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + attemptColumns + ` FROM payout_attempts
        WHERE commission_record_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`
	var attempts []models.PayoutAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, recordID, tenantID); err != nil {
		return nil, fmt.Errorf("list payout attempts: %w", err)
	}
	return attempts, nil
}

// ResolveAttempt moves a pending attempt to paid or failed and refreshes the
// record's aggregate payout status in the same transaction. The status guard
// on the UPDATE makes two concurrent resolutions race to exactly one winner;
// the loser gets ErrVersionConflict.
func (r *CommissionRepository) ResolveAttempt(ctx context.Context, attemptID string, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var paidAt *time.Time
	if outcome == models.AttemptPaid {
		paidAt = &now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve payout: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE payout_attempts
        SET status = $1, external_reference = $2, paid_at = $3, updated_at = $4
        WHERE id = $5 AND tenant_id = $6 AND status = $7`
	res, err := tx.ExecContext(ctx, update, outcome, externalRef, paidAt, now, attemptID, tenantID, models.AttemptPending)
	if err != nil {
		return nil, fmt.Errorf("resolve payout attempt: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("resolve payout attempt: %w", err)
	} else if affected == 0 {
		return nil, ErrVersionConflict
	}

	var attempt models.PayoutAttempt
	const fetch = `SELECT ` + attemptColumns + ` FROM payout_attempts WHERE id = $1 AND tenant_id = $2`
	if err := sqlx.GetContext(ctx, tx, &attempt, fetch, attemptID, tenantID); err != nil {
		return nil, fmt.Errorf("reload payout attempt: %w", err)
	}
	if err := refreshAggregate(ctx, tx, tenantID, attempt.CommissionRecordID, now); err != nil {
		return nil, err
	}

	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve payout: %w", err)
	}
	return &attempt, nil
}

// CreateRetryAttempt inserts a fresh attempt for a role whose previous try
// failed. The partial unique index on (commission_record_id, recipient_role)
// over non-failed rows rejects concurrent duplicates.
func (r *CommissionRepository) CreateRetryAttempt(ctx context.Context, attempt *models.PayoutAttempt, outcome models.AttemptStatus, externalRef *string, audit *models.AuditLog) (*models.PayoutAttempt, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	attempt.TenantID = tenantID
	attempt.Status = outcome
	attempt.ExternalReference = externalRef
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	if outcome == models.AttemptPaid {
		attempt.PaidAt = &now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin retry payout: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertAttempt(ctx, tx, attempt); err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	if err := refreshAggregate(ctx, tx, tenantID, attempt.CommissionRecordID, now); err != nil {
		return nil, err
	}

	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit retry payout: %w", err)
	}
	return attempt, nil
}

func insertAttempt(ctx context.Context, tx sqlx.ExtContext, attempt *models.PayoutAttempt) error {
	const query = `INSERT INTO payout_attempts (` + attemptColumns + `)
        VALUES (:id, :tenant_id, :commission_record_id, :recipient_role, :amount_cents,
        :status, :external_reference, :paid_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, attempt); err != nil {
		return fmt.Errorf("insert payout attempt: %w", err)
	}
	return nil
}

// refreshAggregate recomputes the record's payout status from its ledger.
func refreshAggregate(ctx context.Context, tx sqlx.ExtContext, tenantID, recordID string, now time.Time) error {
	var attempts []models.PayoutAttempt
	const query = `SELECT ` + attemptColumns + ` FROM payout_attempts
        WHERE commission_record_id = $1 AND tenant_id = $2`
	if err := sqlx.SelectContext(ctx, tx, &attempts, query, recordID, tenantID); err != nil {
		return fmt.Errorf("load payout ledger: %w", err)
	}
	agg := models.DerivePayoutStatus(attempts)

	const update = `UPDATE commission_records SET payout_status = $1, version = version + 1, updated_at = $2
        WHERE id = $3 AND tenant_id = $4`
	res, err := tx.ExecContext(ctx, update, agg.Status, now, recordID, tenantID)
	if err != nil {
		return fmt.Errorf("refresh payout status: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("refresh payout status: %w", err)
	} else if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
