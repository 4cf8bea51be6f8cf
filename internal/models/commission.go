package models

import "time"

// TriggerType identifies the milestone event that caused a settlement.
// Settlement is idempotent per (application, trigger type).
type TriggerType string

const (
	TriggerEnrollmentConfirmed TriggerType = "enrollment_confirmed"
	TriggerTuitionPaid         TriggerType = "tuition_paid"
	TriggerServiceMilestone    TriggerType = "service_milestone"
)

// ParseTriggerType validates a caller-supplied trigger type.
func ParseTriggerType(raw string) (TriggerType, bool) {
	switch TriggerType(raw) {
	case TriggerEnrollmentConfirmed, TriggerTuitionPaid, TriggerServiceMilestone:
		return TriggerType(raw), true
	default:
		return "", false
	}
}

// RecipientRole is the closed set of distribution recipients.
type RecipientRole string

const (
	RecipientPlatform  RecipientRole = "platform"
	RecipientAgent     RecipientRole = "agent"
	RecipientApplicant RecipientRole = "applicant"
)

// RecipientRoles lists every role; a commission always splits three ways.
var RecipientRoles = []RecipientRole{RecipientPlatform, RecipientAgent, RecipientApplicant}

// ParseRecipientRole validates a caller-supplied role.
func ParseRecipientRole(raw string) (RecipientRole, bool) {
	switch RecipientRole(raw) {
	case RecipientPlatform, RecipientAgent, RecipientApplicant:
		return RecipientRole(raw), true
	default:
		return "", false
	}
}

// PayoutStatus is the aggregate payment state of a commission record.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPartial PayoutStatus = "partial"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// AttemptStatus is the state of a single payout attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptPaid    AttemptStatus = "paid"
	AttemptFailed  AttemptStatus = "failed"
)

// Share is one leg of the three-way distribution. Amounts are minor units;
// rates are basis points so the split arithmetic stays integral.
type Share struct {
	Role        RecipientRole `json:"role"`
	RateBps     int64         `json:"rate_bps"`
	AmountCents int64         `json:"amount_cents"`
}

// CommissionRecord is the immutable settlement of one triggering event.
// Only PayoutStatus mutates after creation, via the payout ledger.
type CommissionRecord struct {
	ID             string      `db:"id" json:"id"`
	TenantID       string      `db:"tenant_id" json:"-"`
	ApplicationID  string      `db:"application_id" json:"application_id"`
	TriggerType    TriggerType `db:"trigger_type" json:"trigger_type"`
	TransactionRef string      `db:"transaction_ref" json:"transaction_ref"`

	TotalAmountCents int64  `db:"total_amount_cents" json:"total_amount_cents"`
	Currency         string `db:"currency" json:"currency"`

	PlatformRateBps      int64 `db:"platform_rate_bps" json:"platform_rate_bps"`
	PlatformAmountCents  int64 `db:"platform_amount_cents" json:"platform_amount_cents"`
	AgentRateBps         int64 `db:"agent_rate_bps" json:"agent_rate_bps"`
	AgentAmountCents     int64 `db:"agent_amount_cents" json:"agent_amount_cents"`
	ApplicantRateBps     int64 `db:"applicant_rate_bps" json:"applicant_rate_bps"`
	ApplicantAmountCents int64 `db:"applicant_amount_cents" json:"applicant_amount_cents"`

	PayoutStatus PayoutStatus `db:"payout_status" json:"payout_status"`
	TriggeredBy  string       `db:"triggered_by" json:"triggered_by"`
	TriggeredAt  time.Time    `db:"triggered_at" json:"triggered_at"`
	Version      int          `db:"version" json:"version"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Distribution returns the three shares in role order.
func (c *CommissionRecord) Distribution() []Share {
	return []Share{
		{Role: RecipientPlatform, RateBps: c.PlatformRateBps, AmountCents: c.PlatformAmountCents},
		{Role: RecipientAgent, RateBps: c.AgentRateBps, AmountCents: c.AgentAmountCents},
		{Role: RecipientApplicant, RateBps: c.ApplicantRateBps, AmountCents: c.ApplicantAmountCents},
	}
}

// ShareFor returns the amount owed to a role. The switch is exhaustive over
// the closed enum; callers must parse roles before reaching here.
func (c *CommissionRecord) ShareFor(role RecipientRole) int64 {
	switch role {
	case RecipientPlatform:
		return c.PlatformAmountCents
	case RecipientAgent:
		return c.AgentAmountCents
	case RecipientApplicant:
		return c.ApplicantAmountCents
	}
	return 0
}

// PayoutAttempt is a single recorded try at paying a distribution share.
type PayoutAttempt struct {
	ID                 string        `db:"id" json:"id"`
	TenantID           string        `db:"tenant_id" json:"-"`
	CommissionRecordID string        `db:"commission_record_id" json:"commission_record_id"`
	RecipientRole      RecipientRole `db:"recipient_role" json:"recipient_role"`
	AmountCents        int64         `db:"amount_cents" json:"amount_cents"`
	Status             AttemptStatus `db:"status" json:"status"`
	ExternalReference  *string       `db:"external_reference" json:"external_reference,omitempty"`
	PaidAt             *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// AggregatePayout summarises payout progress for a commission record.
type AggregatePayout struct {
	Status            PayoutStatus `json:"status"`
	AttentionRequired bool         `json:"attention_required"`
	PaidRoles         int          `json:"paid_roles"`
}

// DerivePayoutStatus folds payout attempts into the aggregate view: paid only
// when every role has a paid attempt, partial when at least one does, with
// failed attempts flagged but never blocking.
func DerivePayoutStatus(attempts []PayoutAttempt) AggregatePayout {
	paid := make(map[RecipientRole]bool, len(RecipientRoles))
	attention := false
	for _, attempt := range attempts {
		switch attempt.Status {
		case AttemptPaid:
			paid[attempt.RecipientRole] = true
		case AttemptFailed:
			attention = true
		}
	}
	agg := AggregatePayout{Status: PayoutStatusPending, AttentionRequired: attention, PaidRoles: len(paid)}
	switch {
	case len(paid) == len(RecipientRoles):
		agg.Status = PayoutStatusPaid
	case len(paid) > 0:
		agg.Status = PayoutStatusPartial
	}
	return agg
}

// CommissionDetail is the API representation of a record with its ledger.
type CommissionDetail struct {
	CommissionRecord
	Distribution []Share         `json:"distribution"`
	Attempts     []PayoutAttempt `json:"payout_attempts"`
	Aggregate    AggregatePayout `json:"aggregate"`
}

// CommissionFilter provides list filters.
type CommissionFilter struct {
	ApplicationID string
	PayoutStatus  PayoutStatus
	Page          int
	PageSize      int
}
