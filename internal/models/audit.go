package models

import "time"

// Audit event names recorded by the workflow.
const (
	AuditEventApplicationCreated = "APPLICATION_CREATED"
	AuditEventStatusChanged      = "STATUS_CHANGED"
	AuditEventFormCreated        = "FORM_CREATED"
	AuditEventFormSigned         = "FORM_SIGNED"
	AuditEventCommissionSettled  = "COMMISSION_SETTLED"
	AuditEventPayoutRecorded     = "PAYOUT_RECORDED"
)

// AuditLog is one append-only audit trail record. Audit rows are written in
// the same transaction as the mutation they describe; a failed audit write
// fails the whole operation.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"-"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Event      string    `db:"event" json:"event"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
