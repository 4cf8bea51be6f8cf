package repository

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
)

// ApplicationRepository handles persistence of applications and their timeline.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, tenant_id, application_ref, client_id, agent_id, status,
        authorization_form_id, commission_record_id, tuition_fee_cents, currency, version, created_at, updated_at`

// newApplicationRef mirrors the APP<yymmdd><rand> reference scheme.
func newApplicationRef(now time.Time) string {
	return fmt.Sprintf("APP%s%04d", now.Format("060102"), rand.Intn(10000))
}

// Create persists a draft application, its first timeline entry and the audit
// row in one transaction.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, entry *models.StatusHistoryEntry, audit *models.AuditLog) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.ApplicationRef == "" {
		app.ApplicationRef = newApplicationRef(now)
	}
	app.TenantID = tenantID
	app.Version = 1
	app.CreatedAt = now
	app.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO applications (` + applicationColumns + `)
        VALUES (:id, :tenant_id, :application_ref, :client_id, :agent_id, :status,
        :authorization_form_id, :commission_record_id, :tuition_fee_cents, :currency, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	if err := insertHistory(ctx, tx, tenantID, app.ID, entry); err != nil {
		return err
	}
	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByID returns an application within the caller's tenant scope.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND tenant_id = $2`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id, tenantID); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.AgentID != "" {
		conditions = append(conditions, fmt.Sprintf("agent_id = $%d", len(args)+1))
		args = append(args, filter.AgentID)
	}
	if filter.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)+1))
		args = append(args, filter.ClientID)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at":      "created_at",
		"updated_at":      "updated_at",
		"application_ref": "application_ref",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT `+applicationColumns+` FROM applications%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		clause, orderBy, order, size, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM applications" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ListHistory returns the append-only timeline for an application.
func (r *ApplicationRepository) ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT id, tenant_id, application_id, status, actor_id, actor_role, note, created_at
        FROM application_status_history WHERE application_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, applicationID, tenantID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}

// UpdateStatus moves the application to a new status with an optimistic
// version check, appending the timeline entry and audit row atomically.
// Returns ErrVersionConflict when the row moved under the caller.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, app *models.Application, target models.ApplicationStatus, entry *models.StatusHistoryEntry, audit *models.AuditLog) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE applications SET status = $1, version = version + 1, updated_at = $2
        WHERE id = $3 AND tenant_id = $4 AND version = $5`
	res, err := tx.ExecContext(ctx, update, target, time.Now().UTC(), app.ID, tenantID, app.Version)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update application status: %w", err)
	} else if affected == 0 {
		return ErrVersionConflict
	}
	if err := insertHistory(ctx, tx, tenantID, app.ID, entry); err != nil {
		return err
	}
	audit.TenantID = tenantID
	if err := recordAudit(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	app.Status = target
	app.Version++
	return nil
}

func insertHistory(ctx context.Context, tx sqlx.ExtContext, tenantID, applicationID string, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.TenantID = tenantID
	entry.ApplicationID = applicationID
	const query = `INSERT INTO application_status_history (id, tenant_id, application_id, status, actor_id, actor_role, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.ApplicationID, entry.Status, entry.ActorID, entry.ActorRole, entry.Note, entry.CreatedAt); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}
