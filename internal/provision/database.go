// Package provision creates the per-tenant isolated resources: a dedicated
// PostgreSQL database with a least-privilege owner role, and a workspace
// directory account for the tenant administrator.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/adminphysiotech/physiotech/internal/secrets"
)

// maxIdentifierLength is the PostgreSQL identifier length limit.
const maxIdentifierLength = 63

// DatabaseMeta carries the generated identifiers and credentials for one
// tenant database. The password is handed to the caller exactly once and is
// stored only encrypted.
type DatabaseMeta struct {
	Name     string
	User     string
	Password string
}

// DatabaseConfig configures the tenant database provisioner.
type DatabaseConfig struct {
	// AdminConnString is the connection string for a role allowed to create
	// databases and roles.
	AdminConnString string

	// PasswordLength and PasswordSpecials feed the generated owner password.
	PasswordLength   int
	PasswordSpecials string
}

// Database provisions isolated tenant databases.
type Database struct {
	cfg DatabaseConfig
}

// NewDatabase creates a tenant database provisioner.
func NewDatabase(cfg DatabaseConfig) *Database {
	return &Database{cfg: cfg}
}

var dbSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateMetadata derives the database name, owner role and password for a
// tenant. The name is a slug of the organization name plus a UTC timestamp,
// capped at the identifier length limit; two calls at different seconds
// never collide.
func (d *Database) GenerateMetadata(orgName string) (*DatabaseMeta, error) {
	slug := strings.Trim(dbSlugPattern.ReplaceAllString(strings.ToLower(orgName), "_"), "_")
	if slug == "" {
		slug = randomHex(4)
	}

	timestamp := time.Now().UTC().Format("20060102150405")
	name := fmt.Sprintf("tenant_%s_%s", slug, timestamp)
	if len(name) > maxIdentifierLength {
		name = name[:maxIdentifierLength]
	}

	password, err := secrets.GeneratePassword(d.cfg.PasswordLength, d.cfg.PasswordSpecials)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant password: %w", err)
	}

	return &DatabaseMeta{
		Name:     name,
		User:     "usr_" + randomHex(6),
		Password: password,
	}, nil
}

// Provision creates the tenant role and database and locks down public
// access. If database creation fails after the role was created, the role is
// dropped before the error propagates, so no orphan roles survive a failed
// provision. No step is retried.
func (d *Database) Provision(ctx context.Context, meta *DatabaseMeta) error {
	conn, err := d.connect(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to connect to database server: %w", err)
	}
	defer conn.Close(ctx)

	user := pgx.Identifier{meta.User}.Sanitize()
	name := pgx.Identifier{meta.Name}.Sanitize()

	// A login role that cannot create databases or roles and does not
	// inherit privileges from other roles.
	_, err = conn.Exec(ctx, fmt.Sprintf(
		"CREATE ROLE %s WITH LOGIN PASSWORD %s NOCREATEDB NOCREATEROLE NOINHERIT",
		user, quoteLiteral(meta.Password),
	))
	if err != nil {
		return fmt.Errorf("failed to create tenant role: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(
		"CREATE DATABASE %s OWNER %s ENCODING 'UTF8' LC_COLLATE 'en_US.UTF-8' LC_CTYPE 'en_US.UTF-8' TEMPLATE template0",
		name, user,
	))
	if err != nil {
		if _, dropErr := conn.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", user)); dropErr != nil {
			log.Error().Err(dropErr).Str("user", meta.User).Msg("Failed to drop role while rolling back tenant database creation")
		}
		return fmt.Errorf("failed to create tenant database: %w", err)
	}

	if _, err = conn.Exec(ctx, fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM PUBLIC", name)); err != nil {
		return fmt.Errorf("failed to revoke public connect: %w", err)
	}
	if _, err = conn.Exec(ctx, fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", name, user)); err != nil {
		return fmt.Errorf("failed to grant connect to tenant role: %w", err)
	}

	// The schema privileges have to be adjusted from inside the new
	// database itself.
	tenantConn, err := d.connect(ctx, meta.Name)
	if err != nil {
		return fmt.Errorf("failed to connect to tenant database: %w", err)
	}
	defer tenantConn.Close(ctx)

	if _, err = tenantConn.Exec(ctx, "REVOKE ALL ON SCHEMA public FROM PUBLIC"); err != nil {
		return fmt.Errorf("failed to revoke public schema privileges: %w", err)
	}
	if _, err = tenantConn.Exec(ctx, fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", user)); err != nil {
		return fmt.Errorf("failed to grant schema privileges to tenant role: %w", err)
	}

	log.Info().
		Str("database", meta.Name).
		Str("user", meta.User).
		Msg("Provisioned tenant database")

	return nil
}

// Deprovision drops the tenant database and role, if they exist. Used as the
// compensating action when a later provisioning step fails.
func (d *Database) Deprovision(ctx context.Context, meta *DatabaseMeta) error {
	conn, err := d.connect(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to connect to database server: %w", err)
	}
	defer conn.Close(ctx)

	name := pgx.Identifier{meta.Name}.Sanitize()
	user := pgx.Identifier{meta.User}.Sanitize()

	if _, err = conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", name)); err != nil {
		return fmt.Errorf("failed to drop tenant database: %w", err)
	}
	if _, err = conn.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", user)); err != nil {
		return fmt.Errorf("failed to drop tenant role: %w", err)
	}

	log.Info().
		Str("database", meta.Name).
		Str("user", meta.User).
		Msg("Deprovisioned tenant database")

	return nil
}

// connect opens a single admin connection, optionally to a specific
// database. DDL like CREATE DATABASE needs the simple protocol.
func (d *Database) connect(ctx context.Context, database string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(d.cfg.AdminConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin connection string: %w", err)
	}
	if database != "" {
		cfg.Database = database
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	return pgx.ConnectConfig(ctx, cfg)
}

// quoteLiteral quotes a string literal for interpolation into DDL, where
// bind parameters are not available.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand read failures are not recoverable
		panic(err)
	}
	return hex.EncodeToString(buf)
}
