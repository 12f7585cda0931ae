// Package migrate composes the migration building blocks into the dry-run,
// execute, resume and verify flows.
package migrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/checkpoint"
	"github.com/starford/relayout/internal/degraded"
	"github.com/starford/relayout/internal/filename"
	"github.com/starford/relayout/internal/index"
	"github.com/starford/relayout/internal/lock"
	"github.com/starford/relayout/internal/mover"
	"github.com/starford/relayout/internal/preflight"
	"github.com/starford/relayout/internal/realname"
	"github.com/starford/relayout/internal/storage"
)

// DefaultCheckpointInterval is the number of processed files between
// checkpoint writes.
const DefaultCheckpointInterval = 100

// Config is the orchestrator's view of the application configuration.
type Config struct {
	Root               string
	DegradedRoot       string
	CheckpointInterval int
	MoveTimeout        time.Duration
	MaxPathLength      int
	MaxNameLength      int
}

// Options select the flow of one Run.
type Options struct {
	DryRun        bool
	Resume        bool
	Verify        bool
	Force         bool
	ClearLock     bool
	ClearDegraded bool
	BackupDir     string
}

// Summary describes what a run did.
type Summary struct {
	MigrationID string
	Planned     int
	Moved       int
	InPlace     int
	Resumed     int
	Failed      []string
	BackupDir   string
}

type moveFunc func(ctx context.Context, src, dst string, timeout time.Duration) error

// Orchestrator runs migrations over one knowledge tree.
type Orchestrator struct {
	cfg         Config
	lock        *lock.Lock
	degraded    *degraded.Controller
	checkpoints *checkpoint.Manager
	names       *realname.Cache
	preflight   *preflight.Checker
	generator   *filename.Generator
	journal     index.Journal
	in          *bufio.Reader
	out         io.Writer
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
	move  moveFunc
}

// New wires an Orchestrator. Marker files live in state; journal may be nil,
// in which case moves are not journalled and --verify checks the backup only.
func New(cfg Config, state storage.Provider, checker *preflight.Checker, journal index.Journal,
	in io.Reader, out io.Writer, logger *slog.Logger,
) *Orchestrator {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = mover.DefaultTimeout
	}
	gen := filename.New()
	if cfg.MaxPathLength > 0 {
		gen.MaxPathLength = cfg.MaxPathLength
	}
	if cfg.MaxNameLength > 0 {
		gen.MaxNameLength = cfg.MaxNameLength
	}
	return &Orchestrator{
		cfg:         cfg,
		lock:        lock.New(state),
		degraded:    degraded.New(state, cfg.Root, cfg.DegradedRoot),
		checkpoints: checkpoint.NewManager(state),
		names:       realname.Load(state, logger.With(slog.String("phase", checkpoint.PhaseScan))),
		preflight:   checker,
		generator:   gen,
		journal:     journal,
		in:          bufio.NewReader(in),
		out:         out,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
		move:        mover.MoveWithTimeout,
	}
}

// Run executes the flow selected by opts.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	switch {
	case opts.ClearLock || opts.ClearDegraded:
		return nil, o.clearMarkers(opts)
	case opts.Verify:
		return nil, o.verify(ctx, opts)
	case opts.DryRun:
		return nil, o.dryRun(ctx, opts)
	}
	return o.execute(ctx, opts)
}

func (o *Orchestrator) phase(name string) *slog.Logger {
	return o.logger.With(slog.String("phase", name))
}

func (o *Orchestrator) clearMarkers(opts Options) error {
	log := o.phase("recovery")
	if opts.ClearLock {
		if info, err := o.lock.Holder(); err == nil {
			log.Warn("clearing migration lock",
				slog.String("migration_id", info.MigrationID),
				slog.Int("pid", info.PID))
		}
		if err := o.lock.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(o.out, "Migration lock cleared.")
	}
	if opts.ClearDegraded {
		if m, err := o.degraded.Marker(); err == nil {
			log.Warn("clearing degraded mode", slog.String("cause", m.Error))
		}
		if err := o.degraded.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(o.out, "Degraded mode cleared; writers use the primary tree again.")
	}
	return nil
}

// confirm prompts on out and reads one answer. EOF or cancellation is a no.
func (o *Orchestrator) confirm(ctx context.Context) bool {
	fmt.Fprint(o.out, "Continue? [y/N] ")

	answer := make(chan string, 1)
	go func() {
		line, _ := o.in.ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(o.out)
		return false
	case line := <-answer:
		switch line = trimAnswer(line); line {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// fail puts the tree into degraded mode after an unrecovered error.
func (o *Orchestrator) fail(cause error, backupDir string) {
	log := o.phase("failure")
	log.Error("migration failed", slog.String("error", cause.Error()))
	if err := o.degraded.MarkFailed(cause); err != nil {
		log.Error("could not write failure marker", slog.String("error", err.Error()))
	}
	fmt.Fprintf(o.out, "Migration failed: %v\n", cause)
	fmt.Fprintf(o.out, "Degraded mode is active; new content goes to %s.\n", o.cfg.DegradedRoot)
	if backupDir != "" {
		fmt.Fprintf(o.out, "Inspect migration.log, then run with --resume, or restore with: rollback --backup-dir %s\n", backupDir)
	} else {
		fmt.Fprintln(o.out, "Inspect migration.log, then run with --resume.")
	}
}

func cancelled(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, apperr.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", err, apperr.ErrCancelled)
}
