package models

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationStatus tracks where a tenant is in the signup lifecycle.
type OrganizationStatus string

const (
	OrganizationStatusPendingVerification OrganizationStatus = "pending_verification"
	OrganizationStatusProvisioning        OrganizationStatus = "provisioning"
	OrganizationStatusActive              OrganizationStatus = "active"
	OrganizationStatusSuspended           OrganizationStatus = "suspended"
)

// Organization represents a tenant in the system. One record is created per
// signup and is mutated only by the signup orchestrator; it is never deleted
// by the signup flow.
//
// Email, DatabaseName, DatabaseUser and WorkspaceEmail are each globally
// unique, enforced by constraints in the control-plane database.
type Organization struct {
	OrgID uuid.UUID // UUIDv7

	// Identity
	Name    string
	Email   string // contact email, unique
	Phone   string
	Address string

	// Geocoded location
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	PlaceID          string

	// Subscription selection
	SubscriptionPlan string
	BillingCycle     string

	// Tenant administrator contact
	AdminFirstName     string
	AdminLastName      string
	AdminPersonalEmail string
	AdminMobilePhone   string

	// Provisioned resources, nil until provisioning completes
	DatabaseName         *string
	DatabaseUser         *string
	DatabasePasswordEnc  *string
	WorkspaceEmail       *string
	WorkspacePasswordEnc *string

	Status     OrganizationStatus
	IsActive   bool
	IsVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
