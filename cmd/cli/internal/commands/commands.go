package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/adminphysiotech/physiotech/internal/logger"
	"github.com/adminphysiotech/physiotech/internal/secrets"
	postgresstore "github.com/adminphysiotech/physiotech/internal/store/postgres"
)

type Globals struct {
	Dev     bool
	Version string
}

// MigrateCmd applies the control-plane schema migrations.
type MigrateCmd struct {
	ConnString string `help:"PostgreSQL connection string for the control-plane database" env:"PHYSIOTECH_CONTROL_DB_DSN"`
}

func (m *MigrateCmd) Validate() error {
	if m.ConnString == "" {
		return errors.New("control-plane connection string is required (--conn-string or PHYSIOTECH_CONTROL_DB_DSN)")
	}
	return nil
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString: m.ConnString,
		MaxConns:   2,
		MinConns:   1,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgresstore.RunMigrations(ctx, pool)
}

// KeygenCmd prints a fresh credentials encryption key.
type KeygenCmd struct{}

func (k *KeygenCmd) Run(ctx context.Context, globals *Globals) error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return err
	}

	fmt.Println(key)
	return nil
}
