//go:build integration

package provision

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTenantServer(t *testing.T, ctx context.Context) string {
	// The tenant DDL sets en_US.UTF-8 collation, which the alpine images do
	// not ship.
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://admin:admin@%s:%s/postgres?sslmode=disable", host, port.Port())
}

func adminConn(t *testing.T, ctx context.Context, connString string) *pgx.Conn {
	conn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(ctx)
	})
	return conn
}

func TestIntegration_DatabaseProvision(t *testing.T) {
	ctx := context.Background()
	connString := setupTenantServer(t, ctx)

	db := NewDatabase(DatabaseConfig{
		AdminConnString:  connString,
		PasswordLength:   24,
		PasswordSpecials: "!@#$%^&*()-_",
	})

	meta, err := db.GenerateMetadata("Acme Health")
	require.NoError(t, err)
	require.NoError(t, db.Provision(ctx, meta))

	admin := adminConn(t, ctx, connString)

	t.Run("role exists with login only", func(t *testing.T) {
		var canLogin, createDB, createRole, inherit bool
		err := admin.QueryRow(ctx,
			"SELECT rolcanlogin, rolcreatedb, rolcreaterole, rolinherit FROM pg_roles WHERE rolname = $1",
			meta.User).Scan(&canLogin, &createDB, &createRole, &inherit)
		require.NoError(t, err)
		require.True(t, canLogin)
		require.False(t, createDB)
		require.False(t, createRole)
		require.False(t, inherit)
	})

	t.Run("database exists and is owned by the tenant role", func(t *testing.T) {
		var owner string
		err := admin.QueryRow(ctx, `
			SELECT r.rolname
			FROM pg_database d
			JOIN pg_roles r ON r.oid = d.datdba
			WHERE d.datname = $1
		`, meta.Name).Scan(&owner)
		require.NoError(t, err)
		require.Equal(t, meta.User, owner)
	})

	t.Run("tenant role can connect and use the public schema", func(t *testing.T) {
		cfg, err := pgx.ParseConfig(connString)
		require.NoError(t, err)
		cfg.User = meta.User
		cfg.Password = meta.Password
		cfg.Database = meta.Name

		conn, err := pgx.ConnectConfig(ctx, cfg)
		require.NoError(t, err)
		defer conn.Close(ctx)

		_, err = conn.Exec(ctx, "CREATE TABLE patients (id INTEGER PRIMARY KEY)")
		require.NoError(t, err)
	})

	t.Run("public connect is revoked", func(t *testing.T) {
		_, err := admin.Exec(ctx, "CREATE ROLE outsider WITH LOGIN PASSWORD 'outsider'")
		require.NoError(t, err)

		var canConnect bool
		err = admin.QueryRow(ctx,
			"SELECT has_database_privilege($1, $2, 'CONNECT')",
			"outsider", meta.Name).Scan(&canConnect)
		require.NoError(t, err)
		require.False(t, canConnect)

		err = admin.QueryRow(ctx,
			"SELECT has_database_privilege($1, $2, 'CONNECT')",
			meta.User, meta.Name).Scan(&canConnect)
		require.NoError(t, err)
		require.True(t, canConnect)
	})

	t.Run("failed database creation drops the fresh role", func(t *testing.T) {
		dup := &DatabaseMeta{
			Name:     meta.Name, // already taken, CREATE DATABASE must fail
			User:     "usr_rollback",
			Password: meta.Password,
		}

		require.Error(t, db.Provision(ctx, dup))

		var exists bool
		err := admin.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)",
			dup.User).Scan(&exists)
		require.NoError(t, err)
		require.False(t, exists, "rolled-back provision must not leave its role behind")
	})

	t.Run("deprovision removes the database and role", func(t *testing.T) {
		require.NoError(t, db.Deprovision(ctx, meta))

		var exists bool
		err := admin.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)",
			meta.Name).Scan(&exists)
		require.NoError(t, err)
		require.False(t, exists)

		err = admin.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)",
			meta.User).Scan(&exists)
		require.NoError(t, err)
		require.False(t, exists)

		// already-gone resources are not an error
		require.NoError(t, db.Deprovision(ctx, meta))
	})
}
