// Package internal wires configuration, logging and state for the migrate and
// rollback commands.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/index"
	"github.com/starford/relayout/internal/migrate"
	"github.com/starford/relayout/internal/mover"
	"github.com/starford/relayout/internal/preflight"
	"github.com/starford/relayout/internal/rollback"
	"github.com/starford/relayout/internal/storage"
)

type runtime struct {
	cfg    *Config
	logger *slog.Logger
	state  *storage.FS
	stdin  io.Reader
	stdout io.Writer
	close  func()
}

func (a *application) setup() (*runtime, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required: %w", apperr.ErrValidation)
	}
	cfg := a.config
	if a.stdin == nil {
		a.stdin = os.Stdin
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}

	if err := os.MkdirAll(cfg.Tree.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	level := cfg.App.LogLevel
	var mirror io.Writer
	if a.verbose {
		level = slog.LevelDebug
		mirror = a.stderr
	}
	logPath := cfg.App.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cfg.Tree.WorkDir, logPath)
	}
	logger, logFile, err := newLogger(logPath, level, mirror)
	if err != nil {
		return nil, err
	}

	state, err := storage.NewFS(cfg.Tree.WorkDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("init state store: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("phase", "startup"),
		slog.String("root", cfg.Tree.Root),
		slog.String("degraded_root", cfg.Tree.DegradedRoot),
		slog.String("work_dir", cfg.Tree.WorkDir),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", level.String()))

	return &runtime{
		cfg:    cfg,
		logger: logger,
		state:  state,
		stdin:  a.stdin,
		stdout: a.stdout,
		close:  func() { logFile.Close() },
	}, nil
}

// RunMigration runs one migration flow. SIGINT and SIGTERM pause the run
// after the current file; the returned error maps onto the exit code through
// apperr.ExitCode.
func RunMigration(ctx context.Context, mopts migrate.Options, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	var journal index.Journal
	if !mopts.DryRun {
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()
		journal = db
	}

	checker := preflight.NewChecker(rt.logger.With(slog.String("phase", "preflight")),
		cfg.Migration.SpaceMultiplier, cfg.Migration.DiskSpacePolicy)

	orch := migrate.New(migrate.Config{
		Root:               cfg.Tree.Root,
		DegradedRoot:       cfg.Tree.DegradedRoot,
		CheckpointInterval: cfg.Migration.CheckpointInterval,
		MoveTimeout:        cfg.Migration.MoveTimeout,
		MaxPathLength:      cfg.Migration.MaxPathLength,
		MaxNameLength:      cfg.Migration.MaxNameLength,
	}, rt.state, checker, journal, rt.stdin, rt.stdout, rt.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		_, err := orch.Run(gCtx, mopts)
		return err
	})

	// First signal pauses the run; a second one falls back to the default
	// handler and kills the process.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			rt.logger.Info("Received shutdown signal",
				slog.String("phase", "signal"),
				slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	err = g.Wait()
	// Abandoned moves may still be between link and source removal.
	mover.Drain()
	if err != nil {
		rt.logger.Error("migration ended with error",
			slog.String("phase", "exit"),
			slog.String("error", err.Error()),
			slog.Int("exit_code", apperr.ExitCode(err)))
		return err
	}
	return nil
}

// RunRollback restores backupDir over the knowledge tree, or only verifies
// it when verifyOnly is set.
func RunRollback(ctx context.Context, backupDir string, verifyOnly bool, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var hook rollback.BuildHook
	if !verifyOnly {
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()

		hooks := []rollback.BuildHook{rollback.IndexHook(db, rt.logger.With(slog.String("phase", "build")))}
		if cfg.Rollback.BuildCommand != "" {
			hooks = append(hooks, rollback.CommandHook(cfg.Rollback.BuildCommand))
		}
		hook = rollback.Chain(hooks...)
	}

	exec := rollback.New(cfg.Tree.Root, cfg.Tree.DegradedRoot, rt.state, hook, rt.stdout, rt.logger)
	if verifyOnly {
		_, err = exec.Verify(ctx, backupDir)
	} else {
		err = exec.Rollback(ctx, backupDir)
	}
	if err != nil {
		rt.logger.Error("rollback ended with error",
			slog.String("phase", "exit"),
			slog.String("error", err.Error()),
			slog.Int("exit_code", apperr.ExitCode(err)))
		return err
	}
	return nil
}
