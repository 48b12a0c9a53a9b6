// Package signup owns the tenant signup lifecycle: it creates organizations,
// drives three-factor verification and orchestrates tenant provisioning,
// moving each organization from pending_verification through provisioning to
// active.
package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adminphysiotech/physiotech/internal/geocode"
	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/provision"
	"github.com/adminphysiotech/physiotech/internal/secrets"
	"github.com/adminphysiotech/physiotech/internal/store"
)

const (
	emailCodeLength         = 6
	workspacePasswordLength = 16
)

// Config carries the verification policy knobs, fixed at startup.
type Config struct {
	// VerificationTimeout is how long a session stays usable after init.
	VerificationTimeout time.Duration

	// MaxAttempts is the per-factor cap on failed verification attempts.
	MaxAttempts int32

	// TOTPWindow is the clock-drift tolerance in 30s time steps.
	TOTPWindow uint

	// PasswordSpecials feeds generated workspace passwords.
	PasswordSpecials string
}

// Geocoder resolves a free-text address to a normalized location.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

// EmailSender dispatches a verification code over email.
type EmailSender interface {
	SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error
}

// SMSVerifier starts and checks out-of-band SMS challenges.
type SMSVerifier interface {
	StartChallenge(ctx context.Context, phone string) (string, error)
	CheckChallenge(ctx context.Context, phone, code string) (bool, error)
}

// TenantDatabases provisions isolated tenant databases.
type TenantDatabases interface {
	GenerateMetadata(orgName string) (*provision.DatabaseMeta, error)
	Provision(ctx context.Context, meta *provision.DatabaseMeta) error
	Deprovision(ctx context.Context, meta *provision.DatabaseMeta) error
}

// WorkspaceAccounts provisions directory accounts for tenant administrators.
type WorkspaceAccounts interface {
	Provision(ctx context.Context, firstName, lastName, password string) (string, error)
	Deprovision(ctx context.Context, email string) error
}

// Orchestrator coordinates the signup state machine. All collaborators are
// injected once at startup and are safe for concurrent use; each call runs
// its steps sequentially.
type Orchestrator struct {
	cfg       Config
	orgs      store.OrganizationStore
	sessions  store.VerificationStore
	cipher    *secrets.Cipher
	geocoder  Geocoder
	email     EmailSender
	sms       SMSVerifier
	tenantDBs TenantDatabases
	workspace WorkspaceAccounts
}

// NewOrchestrator wires up the signup orchestrator.
func NewOrchestrator(
	cfg Config,
	orgs store.OrganizationStore,
	sessions store.VerificationStore,
	cipher *secrets.Cipher,
	geocoder Geocoder,
	email EmailSender,
	sms SMSVerifier,
	tenantDBs TenantDatabases,
	workspace WorkspaceAccounts,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		orgs:      orgs,
		sessions:  sessions,
		cipher:    cipher,
		geocoder:  geocoder,
		email:     email,
		sms:       sms,
		tenantDBs: tenantDBs,
		workspace: workspace,
	}
}

// InitRequest is the input to a signup init call.
type InitRequest struct {
	OrganizationName string
	ContactEmail     string
	ContactPhone     string
	Address          string
	SubscriptionPlan string
	BillingCycle     string

	AdminFirstName     string
	AdminLastName      string
	AdminPersonalEmail string
	AdminMobilePhone   string
}

// InitResult carries the verification handles back to the caller. The TOTP
// secret is plaintext and returned exactly once, for authenticator
// enrollment.
type InitResult struct {
	OrganizationID uuid.UUID
	VerificationID uuid.UUID
	TOTPSecret     string
	TOTPURI        string
	ExpiresAt      time.Time
}

// undoStack collects compensating actions, executed in reverse when a later
// step fails.
type undoStack []func(context.Context)

func (u undoStack) run(ctx context.Context) {
	for i := len(u) - 1; i >= 0; i-- {
		u[i](ctx)
	}
}

// Init starts a signup: it validates the address, creates the organization
// and its verification session, and dispatches the verification channels.
// The email code goes out only after the session record is staged; if any
// step fails, the partial records are removed again so no session with a
// usable expiry survives an undispatched email.
func (o *Orchestrator) Init(ctx context.Context, req *InitRequest) (*InitResult, error) {
	if _, err := o.orgs.GetByEmail(ctx, req.ContactEmail); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, fmt.Errorf("failed to check for existing organization: %w", err)
	}

	location, err := o.geocoder.Geocode(ctx, req.Address)
	if err != nil {
		var geoErr *geocode.Error
		if errors.As(err, &geoErr) {
			return nil, &ValidationError{Reason: geoErr.Error(), Err: err}
		}
		return nil, fmt.Errorf("%w: geocoding unavailable: %s", ErrUpstream, err)
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate organization id: %w", err)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:              orgID,
		Name:               req.OrganizationName,
		Email:              req.ContactEmail,
		Phone:              req.ContactPhone,
		Address:            req.Address,
		FormattedAddress:   location.FormattedAddress,
		Latitude:           location.Latitude,
		Longitude:          location.Longitude,
		PlaceID:            location.PlaceID,
		SubscriptionPlan:   req.SubscriptionPlan,
		BillingCycle:       req.BillingCycle,
		AdminFirstName:     req.AdminFirstName,
		AdminLastName:      req.AdminLastName,
		AdminPersonalEmail: req.AdminPersonalEmail,
		AdminMobilePhone:   req.AdminMobilePhone,
		Status:             models.OrganizationStatusPendingVerification,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := o.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrOrganizationAlreadyExists) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	var undos undoStack
	undos = append(undos, func(ctx context.Context) {
		if err := o.orgs.Delete(ctx, org.OrgID); err != nil {
			log.Error().Err(err).Str("org_id", org.OrgID.String()).Msg("Failed to remove organization while unwinding signup init")
		}
	})

	emailCode, err := secrets.GenerateNumericCode(emailCodeLength)
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to generate email code: %w", err)
	}
	emailCodeHash, err := secrets.Hash(emailCode)
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to hash email code: %w", err)
	}

	totpSecret, err := secrets.GenerateTOTPSecret()
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	totpURI, err := secrets.BuildOTPAuthURI(totpSecret, req.AdminPersonalEmail)
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to build TOTP URI: %w", err)
	}
	totpSecretEnc, err := o.cipher.Encrypt(totpSecret)
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	smsSID, err := o.sms.StartChallenge(ctx, req.AdminMobilePhone)
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("%w: failed to start SMS challenge: %s", ErrUpstream, err)
	}

	verificationID, err := uuid.NewV7()
	if err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("failed to generate verification id: %w", err)
	}

	session := &models.VerificationSession{
		VerificationID:     verificationID,
		OrgID:              org.OrgID,
		EmailCodeHash:      emailCodeHash,
		TOTPSecretEnc:      totpSecretEnc,
		TOTPURI:            totpURI,
		SMSVerificationSID: smsSID,
		ExpiresAt:          now.Add(o.cfg.VerificationTimeout),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := o.sessions.Create(ctx, session); err != nil {
		undos.run(ctx)
		if errors.Is(err, store.ErrVerificationAlreadyExists) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create verification session: %w", err)
	}
	undos = append(undos, func(ctx context.Context) {
		if err := o.sessions.Delete(ctx, session.VerificationID); err != nil {
			log.Error().Err(err).Str("verification_id", session.VerificationID.String()).Msg("Failed to remove verification session while unwinding signup init")
		}
	})

	// Dispatch only once the session record is staged
	if err := o.email.SendCode(ctx, req.AdminPersonalEmail, emailCode, o.cfg.VerificationTimeout); err != nil {
		undos.run(ctx)
		return nil, fmt.Errorf("%w: failed to dispatch email code: %s", ErrUpstream, err)
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("verification_id", session.VerificationID.String()).
		Time("expires_at", session.ExpiresAt).
		Msg("Signup initiated")

	return &InitResult{
		OrganizationID: org.OrgID,
		VerificationID: session.VerificationID,
		TOTPSecret:     totpSecret,
		TOTPURI:        totpURI,
		ExpiresAt:      session.ExpiresAt,
	}, nil
}

// VerifyRequest is the input to a signup verify call.
type VerifyRequest struct {
	VerificationID uuid.UUID
	EmailCode      string
	SMSCode        string
	TOTPCode       string
}

// VerifyResult carries the one-time plaintext credentials back to the
// caller. This is the only point where plaintext secrets cross back over the
// trust boundary.
type VerifyResult struct {
	OrganizationID        uuid.UUID
	WorkspaceEmail        string
	TempWorkspacePassword string
	DatabaseName          string
	DatabaseUser          string
	DatabasePassword      string
}

// Verify checks the three factors strictly in order (email, SMS, TOTP) and,
// once all pass in a single call, provisions the tenant database and
// workspace account and activates the organization.
//
// All three factors are re-validated on every call; earlier verified-at
// stamps record progress but do not skip a factor. Attempt counters and
// stamps persist across failed calls.
func (o *Orchestrator) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	session, err := o.sessions.Get(ctx, req.VerificationID)
	if err != nil {
		if errors.Is(err, store.ErrVerificationNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load verification session: %w", err)
	}

	if session.IsExpired() {
		return nil, ErrExpired
	}

	if session.EmailAttempts >= o.cfg.MaxAttempts ||
		session.SMSAttempts >= o.cfg.MaxAttempts ||
		session.TOTPAttempts >= o.cfg.MaxAttempts {
		return nil, ErrRateLimited
	}

	org, err := o.orgs.Get(ctx, session.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	// Factor 1: email code against the stored hash
	if !secrets.Verify(req.EmailCode, session.EmailCodeHash) {
		return nil, o.failFactor(ctx, session.VerificationID, models.FactorEmail)
	}
	if err := o.sessions.MarkFactorVerified(ctx, session.VerificationID, models.FactorEmail, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record email verification: %w", err)
	}

	// Factor 2: SMS code, checked by the provider
	approved, err := o.sms.CheckChallenge(ctx, org.AdminMobilePhone, req.SMSCode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check SMS challenge: %s", ErrUpstream, err)
	}
	if !approved {
		return nil, o.failFactor(ctx, session.VerificationID, models.FactorSMS)
	}
	if err := o.sessions.MarkFactorVerified(ctx, session.VerificationID, models.FactorSMS, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record SMS verification: %w", err)
	}

	// Factor 3: TOTP against the decrypted secret
	totpSecret, err := o.cipher.Decrypt(session.TOTPSecretEnc)
	if err != nil {
		// key or stored-data corruption, fatal
		return nil, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}
	if !secrets.VerifyTOTP(totpSecret, req.TOTPCode, o.cfg.TOTPWindow) {
		return nil, o.failFactor(ctx, session.VerificationID, models.FactorTOTP)
	}
	if err := o.sessions.MarkFactorVerified(ctx, session.VerificationID, models.FactorTOTP, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record TOTP verification: %w", err)
	}

	return o.provision(ctx, org, session)
}

// failFactor records a failed attempt for the factor and decides between a
// factor-specific client error and the rate limit, which is checked after
// the increment and aborts the whole call.
func (o *Orchestrator) failFactor(ctx context.Context, verificationID uuid.UUID, factor models.Factor) error {
	attempts, err := o.sessions.IncrementAttempts(ctx, verificationID, factor)
	if err != nil {
		return fmt.Errorf("failed to record %s attempt: %w", factor, err)
	}

	if attempts >= o.cfg.MaxAttempts {
		log.Warn().
			Str("verification_id", verificationID.String()).
			Str("factor", string(factor)).
			Int32("attempts", attempts).
			Msg("Verification attempt limit reached")
		return ErrRateLimited
	}

	return &FactorError{Factor: factor}
}

// provision runs the provisioning stage for a fully verified signup. Each
// step registers a compensating action; on failure the actions run in
// reverse and the organization drops back to pending_verification so the
// still-live session can be retried.
func (o *Orchestrator) provision(ctx context.Context, org *models.Organization, session *models.VerificationSession) (*VerifyResult, error) {
	if err := o.orgs.UpdateStatus(ctx, org.OrgID, models.OrganizationStatusProvisioning); err != nil {
		return nil, fmt.Errorf("failed to mark organization provisioning: %w", err)
	}

	var undos undoStack
	unwind := func(ctx context.Context) {
		undos.run(ctx)
		if err := o.orgs.UpdateStatus(ctx, org.OrgID, models.OrganizationStatusPendingVerification); err != nil {
			log.Error().Err(err).Str("org_id", org.OrgID.String()).Msg("Failed to revert organization status after provisioning failure")
		}
	}

	meta, err := o.tenantDBs.GenerateMetadata(org.Name)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("%w: %s", ErrProvisioning, err)
	}

	if err := o.tenantDBs.Provision(ctx, meta); err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("%w: %s", ErrProvisioning, err)
	}
	undos = append(undos, func(ctx context.Context) {
		if err := o.tenantDBs.Deprovision(ctx, meta); err != nil {
			log.Error().Err(err).Str("database", meta.Name).Msg("Failed to drop tenant database while unwinding provisioning")
		}
	})

	workspacePassword, err := secrets.GeneratePassword(workspacePasswordLength, o.cfg.PasswordSpecials)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("failed to generate workspace password: %w", err)
	}

	workspaceEmail, err := o.workspace.Provision(ctx, org.AdminFirstName, org.AdminLastName, workspacePassword)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("%w: failed to provision workspace account: %s", ErrUpstream, err)
	}
	undos = append(undos, func(ctx context.Context) {
		if err := o.workspace.Deprovision(ctx, workspaceEmail); err != nil {
			log.Error().Err(err).Str("email", workspaceEmail).Msg("Failed to delete workspace account while unwinding provisioning")
		}
	})

	dbPasswordEnc, err := o.cipher.Encrypt(meta.Password)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("failed to encrypt database password: %w", err)
	}
	workspacePasswordEnc, err := o.cipher.Encrypt(workspacePassword)
	if err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("failed to encrypt workspace password: %w", err)
	}

	org.DatabaseName = &meta.Name
	org.DatabaseUser = &meta.User
	org.DatabasePasswordEnc = &dbPasswordEnc
	org.WorkspaceEmail = &workspaceEmail
	org.WorkspacePasswordEnc = &workspacePasswordEnc
	org.Status = models.OrganizationStatusActive
	org.IsActive = true
	org.IsVerified = true

	// One-shot: the session is deleted with the same transaction that
	// activates the organization, so a successful verify cannot replay.
	if err := o.orgs.Activate(ctx, org, session.VerificationID); err != nil {
		unwind(ctx)
		return nil, fmt.Errorf("failed to activate organization: %w", err)
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("database", meta.Name).
		Str("workspace_email", workspaceEmail).
		Msg("Tenant provisioned and activated")

	return &VerifyResult{
		OrganizationID:        org.OrgID,
		WorkspaceEmail:        workspaceEmail,
		TempWorkspacePassword: workspacePassword,
		DatabaseName:          meta.Name,
		DatabaseUser:          meta.User,
		DatabasePassword:      meta.Password,
	}, nil
}
