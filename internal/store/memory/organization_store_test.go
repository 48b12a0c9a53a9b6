package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/adminphysiotech/physiotech/internal/models"
	"github.com/adminphysiotech/physiotech/internal/store"
)

func newTestOrganization(t *testing.T) *models.Organization {
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
		AdminPersonalEmail: "ada@acme.test",
		AdminMobilePhone:   "+905551112234",
		Status:             models.OrganizationStatusPendingVerification,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newTestSession(t *testing.T, orgID uuid.UUID) *models.VerificationSession {
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
		SMSVerificationSID: "VE123",
		ExpiresAt:          now.Add(15 * time.Minute),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestOrganizationStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and retrieves an organization", func(t *testing.T) {
		orgs := NewOrganizationStore(NewVerificationStore())
		org := newTestOrganization(t)

		require.NoError(t, orgs.Create(ctx, org))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.Equal(t, org.Email, got.Email)
		require.Equal(t, models.OrganizationStatusPendingVerification, got.Status)

		byEmail, err := orgs.GetByEmail(ctx, org.Email)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, byEmail.OrgID)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		orgs := NewOrganizationStore(NewVerificationStore())
		org := newTestOrganization(t)

		require.NoError(t, orgs.Create(ctx, org))

		dup := *org
		dup.Email = "other@acme.test"
		require.ErrorIs(t, orgs.Create(ctx, &dup), store.ErrOrganizationAlreadyExists)
	})

	t.Run("rejects duplicate emails", func(t *testing.T) {
		orgs := NewOrganizationStore(NewVerificationStore())
		org := newTestOrganization(t)

		require.NoError(t, orgs.Create(ctx, org))

		dup := newTestOrganization(t)
		dup.Email = org.Email
		require.ErrorIs(t, orgs.Create(ctx, dup), store.ErrOrganizationAlreadyExists)
	})

	t.Run("clones on read", func(t *testing.T) {
		orgs := NewOrganizationStore(NewVerificationStore())
		org := newTestOrganization(t)

		require.NoError(t, orgs.Create(ctx, org))

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		got.Name = "mutated"

		again, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, "Acme Health", again.Name)
	})
}

func TestOrganizationStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	orgs := NewOrganizationStore(NewVerificationStore())

	_, err := orgs.Get(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	_, err = orgs.GetByEmail(ctx, "nobody@acme.test")
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
}

func TestOrganizationStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()
	orgs := NewOrganizationStore(NewVerificationStore())
	org := newTestOrganization(t)

	require.NoError(t, orgs.Create(ctx, org))
	require.NoError(t, orgs.UpdateStatus(ctx, org.OrgID, models.OrganizationStatusProvisioning))

	got, err := orgs.Get(ctx, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, models.OrganizationStatusProvisioning, got.Status)

	require.ErrorIs(t, orgs.UpdateStatus(ctx, uuid.New(), models.OrganizationStatusActive), store.ErrOrganizationNotFound)
}

func TestOrganizationStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	sessions := NewVerificationStore()
	orgs := NewOrganizationStore(sessions)

	org := newTestOrganization(t)
	require.NoError(t, orgs.Create(ctx, org))

	session := newTestSession(t, org.OrgID)
	require.NoError(t, sessions.Create(ctx, session))

	require.NoError(t, orgs.Delete(ctx, org.OrgID))

	_, err := orgs.Get(ctx, org.OrgID)
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)

	_, err = sessions.Get(ctx, session.VerificationID)
	require.ErrorIs(t, err, store.ErrVerificationNotFound)
}

func TestOrganizationStoreActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("persists provisioned fields and deletes the session", func(t *testing.T) {
		sessions := NewVerificationStore()
		orgs := NewOrganizationStore(sessions)

		org := newTestOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		session := newTestSession(t, org.OrgID)
		require.NoError(t, sessions.Create(ctx, session))

		dbName := "tenant_acme_health_20260901120000"
		dbUser := "usr_abc123"
		dbPass := "enc-db-pass"
		wsEmail := "ada.lovelace@physiotech.app"
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
		require.NotNil(t, got.WorkspaceEmail)
		require.Equal(t, wsEmail, *got.WorkspaceEmail)

		_, err = sessions.Get(ctx, session.VerificationID)
		require.ErrorIs(t, err, store.ErrVerificationNotFound)
	})

	t.Run("fails when the session is already gone", func(t *testing.T) {
		sessions := NewVerificationStore()
		orgs := NewOrganizationStore(sessions)

		org := newTestOrganization(t)
		require.NoError(t, orgs.Create(ctx, org))

		err := orgs.Activate(ctx, org, uuid.New())
		require.ErrorIs(t, err, store.ErrVerificationNotFound)
	})
}
