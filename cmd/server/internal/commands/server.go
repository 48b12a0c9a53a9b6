package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adminphysiotech/physiotech/internal/geocode"
	"github.com/adminphysiotech/physiotech/internal/logger"
	"github.com/adminphysiotech/physiotech/internal/notify"
	"github.com/adminphysiotech/physiotech/internal/provision"
	"github.com/adminphysiotech/physiotech/internal/secrets"
	"github.com/adminphysiotech/physiotech/internal/server"
	"github.com/adminphysiotech/physiotech/internal/signup"
	postgresstore "github.com/adminphysiotech/physiotech/internal/store/postgres"
)

type ServerCmd struct {
	// Server configuration
	Listen      string   `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"PHYSIOTECH_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"PHYSIOTECH_CORS_ORIGINS"`

	// Encryption / security
	CredentialsKey string `help:"base64 encoded 32 byte key for encrypting stored credentials" env:"PHYSIOTECH_CREDENTIALS_KEY" required:""`

	ControlDB    ControlDBFlags    `embed:"" prefix:"control-db-"`
	Verification VerificationFlags `embed:"" prefix:"verification-"`
	Tenant       TenantFlags       `embed:"" prefix:"tenant-"`
	Twilio       TwilioFlags       `embed:"" prefix:"twilio-"`
	SMTP         SMTPFlags         `embed:"" prefix:"smtp-"`
	Maps         MapsFlags         `embed:"" prefix:"maps-"`
	Workspace    WorkspaceFlags    `embed:"" prefix:"workspace-"`
}

// ControlDBFlags configures the control-plane database holding organizations
// and verification sessions.
type ControlDBFlags struct {
	ConnString string `help:"PostgreSQL connection string for the control-plane database" env:"PHYSIOTECH_CONTROL_DB_DSN"`

	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"PHYSIOTECH_CONTROL_DB_AUTO_MIGRATE"`
}

func (c *ControlDBFlags) Validate() error {
	if c.ConnString == "" {
		return errors.New("control-plane connection string is required (--control-db-conn-string or PHYSIOTECH_CONTROL_DB_DSN)")
	}
	return nil
}

// VerificationFlags configures the three-factor verification policy.
type VerificationFlags struct {
	TimeoutMinutes int32 `help:"minutes before a verification session expires" default:"15" env:"PHYSIOTECH_VERIFICATION_TIMEOUT_MINUTES"`
	MaxAttempts    int32 `help:"maximum failed attempts per verification factor" default:"5" env:"PHYSIOTECH_MAX_VERIFICATION_ATTEMPTS"`
	TOTPWindow     uint  `help:"clock drift tolerance in 30s TOTP steps" default:"1" env:"PHYSIOTECH_TOTP_WINDOW"`
}

// TenantFlags configures tenant database provisioning.
type TenantFlags struct {
	AdminConnString  string `help:"PostgreSQL connection string with CREATEDB/CREATEROLE rights on the tenant server" env:"PHYSIOTECH_TENANT_ADMIN_DSN"`
	PasswordLength   int    `help:"generated tenant password length" default:"24" env:"PHYSIOTECH_TENANT_PASSWORD_LENGTH"`
	PasswordSpecials string `help:"special characters allowed in generated passwords" default:"!@#$%^&*()-_" env:"PHYSIOTECH_TENANT_PASSWORD_SPECIALS"`
}

func (t *TenantFlags) Validate() error {
	if t.AdminConnString == "" {
		return errors.New("tenant admin connection string is required (--tenant-admin-conn-string or PHYSIOTECH_TENANT_ADMIN_DSN)")
	}
	return nil
}

// TwilioFlags configures the Twilio Verify SMS challenge service.
type TwilioFlags struct {
	AccountSID string `help:"Twilio account SID" env:"TWILIO_ACCOUNT_SID" required:""`
	AuthToken  string `help:"Twilio auth token" env:"TWILIO_AUTH_TOKEN" required:""`
	VerifySID  string `help:"Twilio Verify service SID" env:"TWILIO_VERIFY_SID" required:""`
}

// SMTPFlags configures the transactional email transport.
type SMTPFlags struct {
	Host     string `help:"SMTP host" env:"PHYSIOTECH_SMTP_HOST" required:""`
	Port     int    `help:"SMTP port" default:"587" env:"PHYSIOTECH_SMTP_PORT"`
	Username string `help:"SMTP username" env:"PHYSIOTECH_SMTP_USER" required:""`
	Password string `help:"SMTP password" env:"PHYSIOTECH_SMTP_PASS" required:""`
	Sender   string `help:"sender address for verification emails" default:"noreply@physiotech.app" env:"PHYSIOTECH_SMTP_SENDER"`
}

// MapsFlags configures the Google Geocoding client.
type MapsFlags struct {
	APIKey     string `help:"Google Maps API key" env:"GOOGLE_MAPS_API_KEY" required:""`
	RegionBias string `help:"ccTLD region code biasing geocoding results" default:"tr" env:"GOOGLE_MAPS_REGION_BIAS"`
}

// WorkspaceFlags configures Google Workspace account provisioning.
type WorkspaceFlags struct {
	Domain          string `help:"Workspace domain for tenant admin accounts" env:"PHYSIOTECH_WORKSPACE_DOMAIN" required:""`
	Subject         string `help:"Workspace admin subject to impersonate" env:"PHYSIOTECH_WORKSPACE_SUBJECT" required:""`
	CredentialsFile string `help:"path to the delegated service account credentials JSON" env:"PHYSIOTECH_WORKSPACE_CREDENTIALS_FILE" required:""`
}

func (s *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	logr := logger.Setup(globals.Dev)
	log.Logger = logr

	log.Info().Str("version", globals.Version).Msg("Starting signup API server")

	cipher, err := secrets.NewCipher(s.CredentialsKey)
	if err != nil {
		return err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ControlDB.ConnString,
		MaxConns:        s.ControlDB.MaxConns,
		MinConns:        s.ControlDB.MinConns,
		MaxConnLifetime: s.ControlDB.MaxConnLifetime,
		MaxConnIdleTime: s.ControlDB.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if s.ControlDB.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			return err
		}
	}

	sessionStore := postgresstore.NewVerificationStore(pool)
	orgStore := postgresstore.NewOrganizationStore(pool)

	geocoder, err := geocode.NewClient(s.Maps.APIKey, s.Maps.RegionBias)
	if err != nil {
		return err
	}

	email, err := notify.NewEmail(notify.EmailConfig{
		Host:     s.SMTP.Host,
		Port:     s.SMTP.Port,
		Username: s.SMTP.Username,
		Password: s.SMTP.Password,
		Sender:   s.SMTP.Sender,
	})
	if err != nil {
		return err
	}

	sms := notify.NewTwilioVerify(s.Twilio.AccountSID, s.Twilio.AuthToken, s.Twilio.VerifySID)

	tenantDBs := provision.NewDatabase(provision.DatabaseConfig{
		AdminConnString:  s.Tenant.AdminConnString,
		PasswordLength:   s.Tenant.PasswordLength,
		PasswordSpecials: s.Tenant.PasswordSpecials,
	})

	directory, err := provision.NewGoogleDirectory(ctx, s.Workspace.CredentialsFile, s.Workspace.Subject)
	if err != nil {
		return err
	}
	workspace := provision.NewWorkspace(directory, s.Workspace.Domain)

	orchestrator := signup.NewOrchestrator(
		signup.Config{
			VerificationTimeout: time.Duration(s.Verification.TimeoutMinutes) * time.Minute,
			MaxAttempts:         s.Verification.MaxAttempts,
			TOTPWindow:          s.Verification.TOTPWindow,
			PasswordSpecials:    s.Tenant.PasswordSpecials,
		},
		orgStore,
		sessionStore,
		cipher,
		geocoder,
		email,
		sms,
		tenantDBs,
		workspace,
	)

	api := server.New(orchestrator)
	httpServer := configureHTTPServer(s.Listen, api.Handler(logr, s.CORSOrigins))

	log.Info().Str("listen", s.Listen).Msg("Listening for HTTP connections")
	return httpServer.ListenAndServe()
}
