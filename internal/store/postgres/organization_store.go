package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with the verification store.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

const organizationColumns = `
	org_id, name, email, phone, address,
	formatted_address, latitude, longitude, place_id,
	subscription_plan, billing_cycle,
	admin_first_name, admin_last_name, admin_personal_email, admin_mobile_phone,
	database_name, database_user, database_password_enc,
	workspace_email, workspace_password_enc,
	status, is_active, is_verified,
	created_at, updated_at
`

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (` + organizationColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20,
			$21, $22, $23,
			$24, $25
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.Email,
		org.Phone,
		org.Address,
		org.FormattedAddress,
		org.Latitude,
		org.Longitude,
		org.PlaceID,
		org.SubscriptionPlan,
		org.BillingCycle,
		org.AdminFirstName,
		org.AdminLastName,
		org.AdminPersonalEmail,
		org.AdminMobilePhone,
		org.DatabaseName,
		org.DatabaseUser,
		org.DatabasePasswordEnc,
		org.WorkspaceEmail,
		org.WorkspacePasswordEnc,
		org.Status,
		org.IsActive,
		org.IsVerified,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE org_id = $1`
	return s.queryOne(ctx, query, orgID)
}

// GetByEmail retrieves an organization by its contact email.
func (s *OrganizationStore) GetByEmail(ctx context.Context, email string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE email = $1`
	return s.queryOne(ctx, query, email)
}

func (s *OrganizationStore) queryOne(ctx context.Context, query string, arg any) (*models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&org.OrgID,
		&org.Name,
		&org.Email,
		&org.Phone,
		&org.Address,
		&org.FormattedAddress,
		&org.Latitude,
		&org.Longitude,
		&org.PlaceID,
		&org.SubscriptionPlan,
		&org.BillingCycle,
		&org.AdminFirstName,
		&org.AdminLastName,
		&org.AdminPersonalEmail,
		&org.AdminMobilePhone,
		&org.DatabaseName,
		&org.DatabaseUser,
		&org.DatabasePasswordEnc,
		&org.WorkspaceEmail,
		&org.WorkspacePasswordEnc,
		&org.Status,
		&org.IsActive,
		&org.IsVerified,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

// UpdateStatus moves an organization to a new lifecycle status.
func (s *OrganizationStore) UpdateStatus(ctx context.Context, orgID uuid.UUID, status models.OrganizationStatus) error {
	query := `UPDATE organizations SET status = $2, updated_at = $3 WHERE org_id = $1`

	result, err := s.pool.Exec(ctx, query, orgID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update organization status: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("status", string(status)).
		Msg("Updated organization status")

	return nil
}

// Delete deletes an organization by ID.
// This will cascade-delete its verification session via FK constraint.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	query := `DELETE FROM organizations WHERE org_id = $1`

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization (and cascade-deleted its verification session)")

	return nil
}

// Activate finalizes a verified organization and deletes its verification
// session in a single transaction, so a completed signup cannot be replayed.
func (s *OrganizationStore) Activate(ctx context.Context, org *models.Organization, verificationID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			database_name = $2,
			database_user = $3,
			database_password_enc = $4,
			workspace_email = $5,
			workspace_password_enc = $6,
			status = $7,
			is_active = $8,
			is_verified = $9,
			updated_at = $10
		WHERE org_id = $1
	`

	result, err := tx.Exec(ctx, query,
		org.OrgID,
		org.DatabaseName,
		org.DatabaseUser,
		org.DatabasePasswordEnc,
		org.WorkspaceEmail,
		org.WorkspacePasswordEnc,
		org.Status,
		org.IsActive,
		org.IsVerified,
		org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to activate organization: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	result, err = tx.Exec(ctx, `DELETE FROM verification_sessions WHERE verification_id = $1`, verificationID)
	if err != nil {
		return fmt.Errorf("failed to delete verification session: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrVerificationNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("verification_id", verificationID.String()).
		Msg("Activated organization")

	return nil
}
