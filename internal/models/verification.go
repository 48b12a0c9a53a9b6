package models

import (
	"time"

	"github.com/google/uuid"
)

// Factor identifies one of the three signup verification factors.
type Factor string

const (
	FactorEmail Factor = "email"
	FactorSMS   Factor = "sms"
	FactorTOTP  Factor = "totp"
)

// VerificationSession tracks three-factor signup verification progress for
// one organization. At most one live session exists per organization,
// enforced by a uniqueness constraint on OrgID.
//
// Only derived secrets are stored: the email code as a bcrypt hash, the TOTP
// secret encrypted with the process credentials key, and the SMS challenge as
// the provider-assigned verification SID (the provider owns the code).
type VerificationSession struct {
	VerificationID uuid.UUID // UUIDv7
	OrgID          uuid.UUID // FK to organizations, unique, cascade delete

	EmailCodeHash      string
	TOTPSecretEnc      string
	TOTPURI            string
	SMSVerificationSID string

	EmailAttempts int32
	SMSAttempts   int32
	TOTPAttempts  int32

	EmailVerifiedAt *time.Time
	SMSVerifiedAt   *time.Time
	TOTPVerifiedAt  *time.Time

	// ExpiresAt is set once at creation from the configured timeout and
	// never extended.
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired returns true once the session is past its expiry, independent of
// attempt counts.
func (v *VerificationSession) IsExpired() bool {
	return !time.Now().Before(v.ExpiresAt)
}

// Attempts returns the attempt counter for the given factor.
func (v *VerificationSession) Attempts(factor Factor) int32 {
	switch factor {
	case FactorEmail:
		return v.EmailAttempts
	case FactorSMS:
		return v.SMSAttempts
	case FactorTOTP:
		return v.TOTPAttempts
	}
	return 0
}
