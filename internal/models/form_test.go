package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signature(by string, at time.Time) (signedBy *string, signedAt *time.Time) {
	return &by, &at
}

func TestFormStatusDerivation(t *testing.T) {
	now := time.Now().UTC()

	form := &AuthorizationForm{}
	assert.Equal(t, FormStatusDraft, form.Status())

	form.ApplicantSignedBy, form.ApplicantSignedAt = signature("client-1", now)
	assert.Equal(t, FormStatusAwaitingRepresentative, form.Status())
	assert.False(t, form.Complete())

	form.RepresentativeSignedBy, form.RepresentativeSignedAt = signature("agent-1", now)
	assert.Equal(t, FormStatusComplete, form.Status())
	assert.True(t, form.Complete())
}

func TestFormStatusRepresentativeFirst(t *testing.T) {
	now := time.Now().UTC()
	form := &AuthorizationForm{}
	form.RepresentativeSignedBy, form.RepresentativeSignedAt = signature("agent-1", now)
	assert.Equal(t, FormStatusAwaitingApplicant, form.Status())
}

func TestFormExpiry(t *testing.T) {
	now := time.Now().UTC()
	form := &AuthorizationForm{ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, form.Expired(now))
	form.ExpiresAt = now.Add(time.Hour)
	assert.False(t, form.Expired(now))
}

func TestDerivePayoutStatus(t *testing.T) {
	attempts := []PayoutAttempt{
		{RecipientRole: RecipientPlatform, Status: AttemptPending},
		{RecipientRole: RecipientAgent, Status: AttemptPending},
		{RecipientRole: RecipientApplicant, Status: AttemptPending},
	}
	agg := DerivePayoutStatus(attempts)
	assert.Equal(t, PayoutStatusPending, agg.Status)
	assert.False(t, agg.AttentionRequired)

	attempts[0].Status = AttemptPaid
	agg = DerivePayoutStatus(attempts)
	assert.Equal(t, PayoutStatusPartial, agg.Status)
	assert.Equal(t, 1, agg.PaidRoles)

	attempts[1].Status = AttemptFailed
	agg = DerivePayoutStatus(attempts)
	assert.Equal(t, PayoutStatusPartial, agg.Status)
	assert.True(t, agg.AttentionRequired)

	// A retry that succeeds coexists with the failed row.
	attempts = append(attempts, PayoutAttempt{RecipientRole: RecipientAgent, Status: AttemptPaid})
	attempts[2].Status = AttemptPaid
	agg = DerivePayoutStatus(attempts)
	assert.Equal(t, PayoutStatusPaid, agg.Status)
	assert.Equal(t, 3, agg.PaidRoles)
}
