package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
)

// FormRepository handles persistence of authorization forms.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

const formColumns = `id, tenant_id, application_id, form_ref, applicant_id, representative_id,
        applicant_signed_by, applicant_signed_at, applicant_attestation,
        representative_signed_by, representative_signed_at, representative_attestation,
        expires_at, version, created_at, updated_at`

// newFormRef mirrors the F956-<yymm>-<rand> reference scheme.
func newFormRef(now time.Time) string {
	return fmt.Sprintf("F956-%s-%04d", now.Format("0601"), rand.Intn(10000))
}

// IsUniqueViolation reports whether err is a Postgres unique-index violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

// Create inserts the form, links it to its application and writes the audit
// row in one transaction. The unique index on application_id guarantees one
// form per application.
func (r *FormRepository) Create(ctx context.Context, form *models.AuthorizationForm, audit *models.AuditLog) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.FormRef == "" {
		form.FormRef = newFormRef(now)
	}
	if form.ExpiresAt.IsZero() {
		form.ExpiresAt = now.AddDate(2, 0, 0)
	}
	form.TenantID = tenantID
	form.Version = 1
	form.CreatedAt = now
	form.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create form: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO authorization_forms (` + formColumns + `)
        VALUES (:id, :tenant_id, :application_id, :form_ref, :applicant_id, :representative_id,
        :applicant_signed_by, :applicant_signed_at, :applicant_attestation,
        :representative_signed_by, :representative_signed_at, :representative_attestation,
        :expires_at, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, form); err != nil {
		return fmt.Errorf("create authorization form: %w", err)
	}

	const link = `UPDATE applications SET authorization_form_id = $1, updated_at = $2
        WHERE id = $3 AND tenant_id = $4 AND authorization_form_id IS NULL`
	res, err := tx.ExecContext(ctx, link, form.ID, now, form.ApplicationID, tenantID)
	if err != nil {
		return fmt.Errorf("link authorization form: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("link authorization form: %w", err)
	} else if affected == 0 {
		return ErrVersionConflict
	}

	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByID returns a form within the caller's tenant scope.
func (r *FormRepository) FindByID(ctx context.Context, id string) (*models.AuthorizationForm, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + formColumns + ` FROM authorization_forms WHERE id = $1 AND tenant_id = $2`
	var form models.AuthorizationForm
	if err := r.db.GetContext(ctx, &form, query, id, tenantID); err != nil {
		return nil, err
	}
	return &form, nil
}

// FindByApplicationID returns the single form gating an application.
func (r *FormRepository) FindByApplicationID(ctx context.Context, applicationID string) (*models.AuthorizationForm, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + formColumns + ` FROM authorization_forms WHERE application_id = $1 AND tenant_id = $2`
	var form models.AuthorizationForm
	if err := r.db.GetContext(ctx, &form, query, applicationID, tenantID); err != nil {
		return nil, err
	}
	return &form, nil
}

// ApplySignature writes one signature slot with a compare-and-set on the
// form's version, guarding both the slot (signed once) and the concurrent
// completion race. The audit row lands in the same transaction.
func (r *FormRepository) ApplySignature(ctx context.Context, form *models.AuthorizationForm, role models.SignerRole, sig models.Signature, audit *models.AuditLog) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	var column string
	switch role {
	case models.SignerApplicant:
		column = "applicant"
	case models.SignerRepresentative:
		column = "representative"
	default:
		return fmt.Errorf("unknown signer role %q", role)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sign form: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	update := fmt.Sprintf(`UPDATE authorization_forms
        SET %[1]s_signed_by = $1, %[1]s_signed_at = $2, %[1]s_attestation = $3, version = version + 1, updated_at = $4
        WHERE id = $5 AND tenant_id = $6 AND version = $7 AND %[1]s_signed_by IS NULL`, column)
	res, err := tx.ExecContext(ctx, update,
		sig.SignedBy, sig.SignedAt, sig.Attestation, time.Now().UTC(), form.ID, tenantID, form.Version)
	if err != nil {
		return fmt.Errorf("sign authorization form: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sign authorization form: %w", err)
	} else if affected == 0 {
		return ErrVersionConflict
	}

	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sign form: %w", err)
	}
	form.Version++
	return nil
}
