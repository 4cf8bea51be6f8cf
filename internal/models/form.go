package models

import "time"

// FormStatus is derived from the two signature slots, never stored.
type FormStatus string

const (
	FormStatusDraft                  FormStatus = "draft"
	FormStatusAwaitingApplicant      FormStatus = "awaiting_applicant"
	FormStatusAwaitingRepresentative FormStatus = "awaiting_representative"
	FormStatusComplete               FormStatus = "complete"
)

// SignerRole identifies a signature slot on the authorization form.
type SignerRole string

const (
	SignerApplicant      SignerRole = "applicant"
	SignerRepresentative SignerRole = "representative"
)

// ParseSignerRole validates a role supplied by a caller.
func ParseSignerRole(raw string) (SignerRole, bool) {
	switch SignerRole(raw) {
	case SignerApplicant:
		return SignerApplicant, true
	case SignerRepresentative:
		return SignerRepresentative, true
	default:
		return "", false
	}
}

// Signature is a terminal signature tuple; a slot is set exactly once.
type Signature struct {
	SignedBy    *string    `db:"signed_by" json:"signed_by,omitempty"`
	SignedAt    *time.Time `db:"signed_at" json:"signed_at,omitempty"`
	Attestation *string    `db:"attestation" json:"attestation,omitempty"`
}

// Set reports whether the slot holds a signature.
func (s Signature) Set() bool {
	return s.SignedBy != nil && s.SignedAt != nil
}

// AuthorizationForm is the two-party authority-to-represent form gating an
// application's submission stages. One per application, immutable once
// complete; the representative is the registered agent expected to countersign.
type AuthorizationForm struct {
	ID               string `db:"id" json:"id"`
	TenantID         string `db:"tenant_id" json:"-"`
	ApplicationID    string `db:"application_id" json:"application_id"`
	FormRef          string `db:"form_ref" json:"form_ref"`
	ApplicantID      string `db:"applicant_id" json:"applicant_id"`
	RepresentativeID string `db:"representative_id" json:"representative_id"`

	ApplicantSignedBy         *string    `db:"applicant_signed_by" json:"-"`
	ApplicantSignedAt         *time.Time `db:"applicant_signed_at" json:"-"`
	ApplicantAttestation      *string    `db:"applicant_attestation" json:"-"`
	RepresentativeSignedBy    *string    `db:"representative_signed_by" json:"-"`
	RepresentativeSignedAt    *time.Time `db:"representative_signed_at" json:"-"`
	RepresentativeAttestation *string    `db:"representative_attestation" json:"-"`

	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ApplicantSignature returns the applicant slot.
func (f *AuthorizationForm) ApplicantSignature() Signature {
	return Signature{SignedBy: f.ApplicantSignedBy, SignedAt: f.ApplicantSignedAt, Attestation: f.ApplicantAttestation}
}

// RepresentativeSignature returns the representative slot.
func (f *AuthorizationForm) RepresentativeSignature() Signature {
	return Signature{SignedBy: f.RepresentativeSignedBy, SignedAt: f.RepresentativeSignedAt, Attestation: f.RepresentativeAttestation}
}

// Status derives the form state from the signature slots.
func (f *AuthorizationForm) Status() FormStatus {
	applicant := f.ApplicantSignature().Set()
	representative := f.RepresentativeSignature().Set()
	switch {
	case applicant && representative:
		return FormStatusComplete
	case applicant:
		return FormStatusAwaitingRepresentative
	case representative:
		return FormStatusAwaitingApplicant
	default:
		return FormStatusDraft
	}
}

// Complete reports whether both slots are signed.
func (f *AuthorizationForm) Complete() bool {
	return f.Status() == FormStatusComplete
}

// Expired reports whether the form has passed its validity window.
func (f *AuthorizationForm) Expired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// AuthorizationFormView is the API representation with derived status.
type AuthorizationFormView struct {
	AuthorizationForm
	Status            FormStatus `json:"status"`
	ApplicantSig      *Signature `json:"applicant_signature,omitempty"`
	RepresentativeSig *Signature `json:"representative_signature,omitempty"`
}

// View builds the API representation.
func (f *AuthorizationForm) View() AuthorizationFormView {
	view := AuthorizationFormView{AuthorizationForm: *f, Status: f.Status()}
	if sig := f.ApplicantSignature(); sig.Set() {
		view.ApplicantSig = &sig
	}
	if sig := f.RepresentativeSignature(); sig.Set() {
		view.RepresentativeSig = &sig
	}
	return view
}
