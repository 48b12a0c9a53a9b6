//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*OrganizationStore, *VerificationStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewOrganizationStore(pool), NewVerificationStore(pool), cleanup
}

func newIntegrationOrganization(t *testing.T) *models.Organization {
	t.Helper()

	orgID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.Organization{
		OrgID:              orgID,
		Name:               "Acme Health",
		Email:              "contact-" + orgID.String() + "@acme.test",
		Phone:              "+905551112233",
		Address:            "Istiklal Cd. 1, Istanbul",
		FormattedAddress:   "Istiklal Cd. No:1, Beyoglu, Istanbul, Turkiye",
		Latitude:           41.0351,
		Longitude:          28.9833,
		PlaceID:            "ChIJxyz",
		SubscriptionPlan:   "professional",
		BillingCycle:       "monthly",
		AdminFirstName:     "Ada",
		AdminLastName:      "Lovelace",
		AdminPersonalEmail: "ada-" + orgID.String() + "@acme.test",
		AdminMobilePhone:   "+905551112234",
		Status:             models.OrganizationStatusPendingVerification,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newIntegrationSession(t *testing.T, orgID uuid.UUID) *models.VerificationSession {
	t.Helper()

	verificationID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	return &models.VerificationSession{
		VerificationID:     verificationID,
		OrgID:              orgID,
		EmailCodeHash:      "$2a$10$fakehash",
		TOTPSecretEnc:      "ciphertext",
		TOTPURI:            "otpauth://totp/Physiotech:ada@acme.test",
		SMSVerificationSID: "VE" + verificationID.String()[:8],
		ExpiresAt:          now.Add(15 * time.Minute),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestIntegration_OrganizationLifecycle(t *testing.T) {
	ctx := context.Background()
	orgs, sessions, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("create and retrieve", func(t *testing.T) {
		org := newIntegrationOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.Equal(t, models.OrganizationStatusPendingVerification, got.Status)
		require.Nil(t, got.DatabaseName)

		byEmail, err := orgs.GetByEmail(ctx, org.Email)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, byEmail.OrgID)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		org := newIntegrationOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		dup := newIntegrationOrganization(t)
		dup.Email = org.Email
		require.ErrorIs(t, orgs.Create(ctx, dup), store.ErrOrganizationAlreadyExists)
	})

	t.Run("missing organization", func(t *testing.T) {
		_, err := orgs.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("status transitions", func(t *testing.T) {
		org := newIntegrationOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		require.NoError(t, orgs.UpdateStatus(ctx, org.OrgID, models.OrganizationStatusProvisioning))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.OrganizationStatusProvisioning, got.Status)
	})

	t.Run("delete cascades to the session", func(t *testing.T) {
		org := newIntegrationOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		session := newIntegrationSession(t, org.OrgID)
		require.NoError(t, sessions.Create(ctx, session))

		require.NoError(t, orgs.Delete(ctx, org.OrgID))

		_, err := sessions.Get(ctx, session.VerificationID)
		require.ErrorIs(t, err, store.ErrVerificationNotFound)
	})
}

func TestIntegration_VerificationLifecycle(t *testing.T) {
	ctx := context.Background()
	orgs, sessions, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	org := newIntegrationOrganization(t)
	require.NoError(t, orgs.Create(ctx, org))

	session := newIntegrationSession(t, org.OrgID)
	require.NoError(t, sessions.Create(ctx, session))

	t.Run("one session per organization", func(t *testing.T) {
		second := newIntegrationSession(t, org.OrgID)
		require.ErrorIs(t, sessions.Create(ctx, second), store.ErrVerificationAlreadyExists)
	})

	t.Run("attempt counters are independent", func(t *testing.T) {
		attempts, err := sessions.IncrementAttempts(ctx, session.VerificationID, models.FactorEmail)
		require.NoError(t, err)
		require.Equal(t, int32(1), attempts)

		attempts, err = sessions.IncrementAttempts(ctx, session.VerificationID, models.FactorEmail)
		require.NoError(t, err)
		require.Equal(t, int32(2), attempts)

		got, err := sessions.Get(ctx, session.VerificationID)
		require.NoError(t, err)
		require.Equal(t, int32(2), got.EmailAttempts)
		require.Zero(t, got.SMSAttempts)
		require.Zero(t, got.TOTPAttempts)
	})

	t.Run("verified-at stamps persist", func(t *testing.T) {
		at := time.Now()
		require.NoError(t, sessions.MarkFactorVerified(ctx, session.VerificationID, models.FactorEmail, at))

		got, err := sessions.Get(ctx, session.VerificationID)
		require.NoError(t, err)
		require.NotNil(t, got.EmailVerifiedAt)
		require.WithinDuration(t, at, *got.EmailVerifiedAt, time.Second)
		require.Nil(t, got.SMSVerifiedAt)
	})
}

func TestIntegration_Activate(t *testing.T) {
	ctx := context.Background()
	orgs, sessions, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	org := newIntegrationOrganization(t)
	require.NoError(t, orgs.Create(ctx, org))

	session := newIntegrationSession(t, org.OrgID)
	require.NoError(t, sessions.Create(ctx, session))

	dbName := "tenant_acme_health_20260901120000"
	dbUser := "usr_abc123"
	dbPass := "enc-db-pass"
	wsEmail := "ada.lovelace-" + org.OrgID.String() + "@physiotech.app"
	wsPass := "enc-ws-pass"

	org.DatabaseName = &dbName
	org.DatabaseUser = &dbUser
	org.DatabasePasswordEnc = &dbPass
	org.WorkspaceEmail = &wsEmail
	org.WorkspacePasswordEnc = &wsPass
	org.Status = models.OrganizationStatusActive
	org.IsActive = true
	org.IsVerified = true

	require.NoError(t, orgs.Activate(ctx, org, session.VerificationID))

	got, err := orgs.Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, models.OrganizationStatusActive, got.Status)
	require.True(t, got.IsActive)
	require.True(t, got.IsVerified)
	require.NotNil(t, got.DatabaseName)
	require.Equal(t, dbName, *got.DatabaseName)

	_, err = sessions.Get(ctx, session.VerificationID)
	require.ErrorIs(t, err, store.ErrVerificationNotFound)

	// the session is gone, a second activation must fail
	require.ErrorIs(t, orgs.Activate(ctx, org, session.VerificationID), store.ErrVerificationNotFound)
}
