package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/adminphysiotech/physiotech/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations represent tenants; uniqueness of contact email and of the
// provisioned resource identifiers is enforced by the backing store, which is
// what rejects concurrent duplicate signups.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists on a uniqueness violation.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetByEmail retrieves an organization by its contact email.
	// Returns ErrOrganizationNotFound if no organization uses the email.
	GetByEmail(ctx context.Context, email string) (*models.Organization, error)

	// UpdateStatus moves an organization to a new lifecycle status.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	UpdateStatus(ctx context.Context, orgID uuid.UUID, status models.OrganizationStatus) error

	// Delete removes an organization. The signup flow only uses this to
	// compensate a failed init; cascade removes any verification session.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Delete(ctx context.Context, orgID uuid.UUID) error

	// Activate finalizes a fully verified organization: it persists the
	// provisioned resource fields, stamps the organization active/verified
	// and deletes the verification session, all in one transaction. The
	// session is gone afterwards, so a successful signup cannot be replayed.
	Activate(ctx context.Context, org *models.Organization, verificationID uuid.UUID) error
}
