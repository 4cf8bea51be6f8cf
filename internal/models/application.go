package models

import "time"

// ApplicationStatus represents a stage in the application lifecycle.
type ApplicationStatus string

// Lifecycle stages in forward order, plus the terminal cancelling states.
const (
	StatusDraft                 ApplicationStatus = "draft"
	StatusAuthorizationPending  ApplicationStatus = "authorization_pending"
	StatusAuthorizationComplete ApplicationStatus = "authorization_complete"
	StatusDocumentsPending      ApplicationStatus = "documents_pending"
	StatusReadyForSubmission    ApplicationStatus = "ready_for_submission"
	StatusSubmitted             ApplicationStatus = "submitted"
	StatusDecisionPending       ApplicationStatus = "decision_pending"
	StatusApproved              ApplicationStatus = "approved"
	StatusRejected              ApplicationStatus = "rejected"
	StatusCompleted             ApplicationStatus = "completed"
	StatusWithdrawn             ApplicationStatus = "withdrawn"
)

// statusTransitions is the fixed forward transition table. Withdrawn is
// handled separately: it is reachable from any non-terminal status.
var statusTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusDraft:                 {StatusAuthorizationPending},
	StatusAuthorizationPending:  {StatusAuthorizationComplete},
	StatusAuthorizationComplete: {StatusDocumentsPending},
	StatusDocumentsPending:      {StatusReadyForSubmission},
	StatusReadyForSubmission:    {StatusSubmitted},
	StatusSubmitted:             {StatusDecisionPending},
	StatusDecisionPending:       {StatusApproved, StatusRejected},
	StatusApproved:              {StatusCompleted},
	StatusRejected:              {},
	StatusCompleted:             {},
	StatusWithdrawn:             {},
}

// Valid reports whether the status is a known lifecycle stage.
func (s ApplicationStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusWithdrawn
}

// CanTransitionTo validates a move against the fixed transition table.
func (s ApplicationStatus) CanTransitionTo(target ApplicationStatus) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	if target == StatusWithdrawn {
		return !s.Terminal()
	}
	for _, next := range statusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// RequiresCompleteAuthorization reports whether entering the status is gated
// on the application's authorization form being complete.
func (s ApplicationStatus) RequiresCompleteAuthorization() bool {
	switch s {
	case StatusAuthorizationComplete, StatusReadyForSubmission, StatusSubmitted:
		return true
	default:
		return false
	}
}

// Application is a tenant-scoped visa/education application.
type Application struct {
	ID                  string            `db:"id" json:"id"`
	TenantID            string            `db:"tenant_id" json:"-"`
	ApplicationRef      string            `db:"application_ref" json:"application_ref"`
	ClientID            string            `db:"client_id" json:"client_id"`
	AgentID             string            `db:"agent_id" json:"agent_id"`
	Status              ApplicationStatus `db:"status" json:"status"`
	AuthorizationFormID *string           `db:"authorization_form_id" json:"authorization_form_id,omitempty"`
	CommissionRecordID  *string           `db:"commission_record_id" json:"commission_record_id,omitempty"`
	TuitionFeeCents     int64             `db:"tuition_fee_cents" json:"tuition_fee_cents"`
	Currency            string            `db:"currency" json:"currency"`
	Version             int               `db:"version" json:"version"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// StatusHistoryEntry is one append-only line of an application's timeline.
type StatusHistoryEntry struct {
	ID            string            `db:"id" json:"id"`
	TenantID      string            `db:"tenant_id" json:"-"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	Status        ApplicationStatus `db:"status" json:"status"`
	ActorID       string            `db:"actor_id" json:"actor_id"`
	ActorRole     UserRole          `db:"actor_role" json:"actor_role"`
	Note          string            `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// ApplicationFilter provides list filters.
type ApplicationFilter struct {
	Status    ApplicationStatus
	AgentID   string
	ClientID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
