package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/relayout/internal"
	"github.com/starford/relayout/internal/apperr"
	pkgconfig "github.com/starford/relayout/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.String("backup-dir") == "" {
		_ = cli.ShowAppHelp(cmd)
		return fmt.Errorf("--backup-dir is required: %w", apperr.ErrValidation)
	}
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %v: %w", err, apperr.ErrValidation)
	}
	return internal.RunRollback(ctx, cmd.String("backup-dir"), cmd.Bool("verify"),
		internal.WithConfig(cfg),
		internal.WithVerbose(cmd.Bool("verbose")),
	)
}

// usageError maps flag parsing failures to validation errors so they exit 2.
func usageError(_ context.Context, cmd *cli.Command, err error, _ bool) error {
	_ = cli.ShowAppHelp(cmd)
	return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:         "rollback",
		Usage:        "Restore a verified backup over the knowledge tree",
		Action:       run,
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("RELAYOUT_CONFIG_FILE"),
			},
			&cli.StringFlag{Name: "backup-dir", Usage: "Backup to restore (required)"},
			&cli.BoolFlag{Name: "verify", Usage: "Only check the backup against its manifest"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging, mirrored to stderr"},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rollback: %v\n", err)
		os.Exit(apperr.ExitCode(err))
	}
}
