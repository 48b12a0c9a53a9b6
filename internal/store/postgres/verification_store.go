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

// VerificationStore implements store.VerificationStore using PostgreSQL.
type VerificationStore struct {
	pool *pgxpool.Pool
}

// NewVerificationStore creates a new PostgreSQL-backed verification store.
func NewVerificationStore(pool *pgxpool.Pool) *VerificationStore {
	return &VerificationStore{
		pool: pool,
	}
}

// Create creates a new verification session in the database.
func (s *VerificationStore) Create(ctx context.Context, session *models.VerificationSession) error {
	query := `
		INSERT INTO verification_sessions (
			verification_id, org_id,
			email_code_hash, totp_secret_enc, totp_uri, sms_verification_sid,
			email_attempts, sms_attempts, totp_attempts,
			email_verified_at, sms_verified_at, totp_verified_at,
			expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.VerificationID,
		session.OrgID,
		session.EmailCodeHash,
		session.TOTPSecretEnc,
		session.TOTPURI,
		session.SMSVerificationSID,
		session.EmailAttempts,
		session.SMSAttempts,
		session.TOTPAttempts,
		session.EmailVerifiedAt,
		session.SMSVerifiedAt,
		session.TOTPVerifiedAt,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrVerificationAlreadyExists
		}
		return fmt.Errorf("failed to create verification session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("verification_id", session.VerificationID.String()).
		Str("org_id", session.OrgID.String()).
		Time("expires_at", session.ExpiresAt).
		Msg("Created verification session")

	return nil
}

// Get retrieves a verification session by ID.
func (s *VerificationStore) Get(ctx context.Context, verificationID uuid.UUID) (*models.VerificationSession, error) {
	query := `
		SELECT
			verification_id, org_id,
			email_code_hash, totp_secret_enc, totp_uri, sms_verification_sid,
			email_attempts, sms_attempts, totp_attempts,
			email_verified_at, sms_verified_at, totp_verified_at,
			expires_at, created_at, updated_at
		FROM verification_sessions
		WHERE verification_id = $1
	`

	var session models.VerificationSession
	err := s.pool.QueryRow(ctx, query, verificationID).Scan(
		&session.VerificationID,
		&session.OrgID,
		&session.EmailCodeHash,
		&session.TOTPSecretEnc,
		&session.TOTPURI,
		&session.SMSVerificationSID,
		&session.EmailAttempts,
		&session.SMSAttempts,
		&session.TOTPAttempts,
		&session.EmailVerifiedAt,
		&session.SMSVerifiedAt,
		&session.TOTPVerifiedAt,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrVerificationNotFound
		}
		return nil, fmt.Errorf("failed to get verification session: %w", mapPostgresError(err))
	}

	return &session, nil
}

// attemptColumn maps a factor to its counter column. Explicit dispatch, the
// column name never comes from input.
func attemptColumn(factor models.Factor) (string, error) {
	switch factor {
	case models.FactorEmail:
		return "email_attempts", nil
	case models.FactorSMS:
		return "sms_attempts", nil
	case models.FactorTOTP:
		return "totp_attempts", nil
	default:
		return "", fmt.Errorf("unknown verification factor: %q", factor)
	}
}

func verifiedAtColumn(factor models.Factor) (string, error) {
	switch factor {
	case models.FactorEmail:
		return "email_verified_at", nil
	case models.FactorSMS:
		return "sms_verified_at", nil
	case models.FactorTOTP:
		return "totp_verified_at", nil
	default:
		return "", fmt.Errorf("unknown verification factor: %q", factor)
	}
}

// IncrementAttempts bumps one factor's attempt counter and returns the
// updated count.
func (s *VerificationStore) IncrementAttempts(ctx context.Context, verificationID uuid.UUID, factor models.Factor) (int32, error) {
	column, err := attemptColumn(factor)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		UPDATE verification_sessions
		SET %s = %s + 1, updated_at = $2
		WHERE verification_id = $1
		RETURNING %s
	`, column, column, column)

	var attempts int32
	err = s.pool.QueryRow(ctx, query, verificationID, time.Now()).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrVerificationNotFound
		}
		return 0, fmt.Errorf("failed to increment %s attempts: %w", factor, mapPostgresError(err))
	}

	log.Debug().
		Str("verification_id", verificationID.String()).
		Str("factor", string(factor)).
		Int32("attempts", attempts).
		Msg("Incremented verification attempts")

	return attempts, nil
}

// MarkFactorVerified stamps one factor's verified-at timestamp.
func (s *VerificationStore) MarkFactorVerified(ctx context.Context, verificationID uuid.UUID, factor models.Factor, at time.Time) error {
	column, err := verifiedAtColumn(factor)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE verification_sessions
		SET %s = $2, updated_at = $3
		WHERE verification_id = $1
	`, column)

	result, err := s.pool.Exec(ctx, query, verificationID, at, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark %s verified: %w", factor, mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrVerificationNotFound
	}

	return nil
}

// Delete removes a verification session by ID.
func (s *VerificationStore) Delete(ctx context.Context, verificationID uuid.UUID) error {
	query := `DELETE FROM verification_sessions WHERE verification_id = $1`

	result, err := s.pool.Exec(ctx, query, verificationID)
	if err != nil {
		return fmt.Errorf("failed to delete verification session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrVerificationNotFound
	}

	log.Debug().
		Str("verification_id", verificationID.String()).
		Msg("Deleted verification session")

	return nil
}
