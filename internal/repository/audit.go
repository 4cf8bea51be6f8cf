package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ozpath/ozpath-api/internal/models"
)

// recordAudit appends an audit row inside the caller's transaction. Every
// mutating repository method calls this before committing, so an audit
// failure aborts the mutation it describes.
func recordAudit(ctx context.Context, tx sqlx.ExtContext, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, tenant_id, entity_type, entity_id, event, actor_id, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, query,
		log.ID, log.TenantID, log.EntityType, log.EntityID, log.Event, log.ActorID, log.Details, log.CreatedAt); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
