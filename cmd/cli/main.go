package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/adminphysiotech/physiotech/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode."`
		Version kong.VersionFlag
		Migrate commands.MigrateCmd `cmd:"" help:"Run control-plane database migrations"`
		Keygen  commands.KeygenCmd  `cmd:"" help:"Generate a credentials encryption key"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
