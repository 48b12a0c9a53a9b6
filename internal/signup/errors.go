package signup

import (
	"errors"
	"fmt"

	"github.com/adminphysiotech/physiotech/internal/models"
)

// Sentinel errors surfaced by the signup flow. Nothing here is retried
// internally; every failure propagates to the caller, and only the client
// re-submitting a call provides retry semantics.
var (
	// ErrDuplicate is returned when a signup would violate a uniqueness
	// invariant, most commonly an already-registered contact email.
	ErrDuplicate = errors.New("an organization with this contact email already exists")

	// ErrNotFound is returned when the verification session or its
	// organization does not exist.
	ErrNotFound = errors.New("verification session not found")

	// ErrExpired is returned once a session is past its expiry, regardless
	// of the submitted codes.
	ErrExpired = errors.New("verification session has expired")

	// ErrRateLimited is returned when any single factor has reached the
	// configured maximum number of failed attempts.
	ErrRateLimited = errors.New("too many failed verification attempts")

	// ErrUpstream is returned when an external provider (email, SMS,
	// workspace directory) fails.
	ErrUpstream = errors.New("upstream provider unavailable")

	// ErrProvisioning is returned when tenant database provisioning fails.
	ErrProvisioning = errors.New("tenant database provisioning failed")
)

// ValidationError marks a client-fault input problem, such as an address the
// geocoder cannot resolve.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FactorError reports which verification factor failed, without revealing
// anything about the other factors.
type FactorError struct {
	Factor models.Factor
}

func (e *FactorError) Error() string {
	switch e.Factor {
	case models.FactorEmail:
		return "email verification code is incorrect"
	case models.FactorSMS:
		return "SMS verification code is incorrect"
	case models.FactorTOTP:
		return "authenticator code is incorrect"
	}
	return fmt.Sprintf("verification factor %q is incorrect", e.Factor)
}
