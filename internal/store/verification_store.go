package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/adminphysiotech/physiotech/internal/models"
)

// Sentinel errors for verification session store operations
var (
	ErrVerificationNotFound      = errors.New("verification session not found")
	ErrVerificationAlreadyExists = errors.New("verification session already exists")
)

// VerificationStore defines the interface for verification session storage.
// At most one live session exists per organization; the backing store
// enforces this with a uniqueness constraint on the organization reference.
type VerificationStore interface {
	// Create creates a new verification session.
	// Returns ErrVerificationAlreadyExists if the organization already has
	// a live session.
	Create(ctx context.Context, session *models.VerificationSession) error

	// Get retrieves a verification session by ID.
	// Returns ErrVerificationNotFound if the session doesn't exist.
	Get(ctx context.Context, verificationID uuid.UUID) (*models.VerificationSession, error)

	// IncrementAttempts bumps the attempt counter for one factor and
	// returns the updated count. Counters survive failed verify calls so
	// subsequent calls see accurate state.
	// Returns ErrVerificationNotFound if the session doesn't exist.
	IncrementAttempts(ctx context.Context, verificationID uuid.UUID, factor models.Factor) (int32, error)

	// MarkFactorVerified stamps the verified-at timestamp for one factor.
	// Returns ErrVerificationNotFound if the session doesn't exist.
	MarkFactorVerified(ctx context.Context, verificationID uuid.UUID, factor models.Factor, at time.Time) error

	// Delete removes a verification session.
	// Returns ErrVerificationNotFound if the session doesn't exist.
	Delete(ctx context.Context, verificationID uuid.UUID) error
}
