package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/relayout/internal"
	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/migrate"
	pkgconfig "github.com/starford/relayout/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %v: %w", err, apperr.ErrValidation)
	}

	mopts := migrate.Options{
		DryRun:        cmd.Bool("dry-run"),
		Resume:        cmd.Bool("resume"),
		Verify:        cmd.Bool("verify"),
		Force:         cmd.Bool("force"),
		ClearLock:     cmd.Bool("clear-lock"),
		ClearDegraded: cmd.Bool("clear-degraded"),
		BackupDir:     cmd.String("backup-dir"),
	}
	if mopts.DryRun && mopts.Verify {
		return fmt.Errorf("--dry-run and --verify cannot be combined: %w", apperr.ErrValidation)
	}

	return internal.RunMigration(ctx, mopts,
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
		Name:         "migrate",
		Usage:        "Reorganize the knowledge tree into the year/month/category/author layout",
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
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the plan and exit without changing anything"},
			&cli.StringFlag{Name: "backup-dir", Usage: "Where to write the backup (default <root>.backup-<timestamp>); with --verify, the backup to check"},
			&cli.BoolFlag{Name: "resume", Usage: "Continue an interrupted migration from its checkpoint"},
			&cli.BoolFlag{Name: "verify", Usage: "Check the backup and every checkpointed file without changing anything"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging, mirrored to stderr"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip the confirmation prompt"},
			&cli.BoolFlag{Name: "clear-lock", Usage: "Remove a stale migration lock left by a crashed run"},
			&cli.BoolFlag{Name: "clear-degraded", Usage: "Leave degraded mode and send writers back to the primary tree"},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(apperr.ExitCode(err))
	}
}
