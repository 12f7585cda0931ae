package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/backup"
	"github.com/starford/relayout/internal/checkpoint"
	"github.com/starford/relayout/internal/checksum"
	"github.com/starford/relayout/internal/index"
)

func (o *Orchestrator) dryRun(ctx context.Context, opts Options) error {
	var state *checkpoint.State
	if opts.Resume {
		s, err := o.resumable()
		if err != nil {
			return err
		}
		state = s
	}

	p, err := o.scan(ctx, o.cfg.Root, o.degraded.OutputDirectory(), state)
	if err != nil {
		return err
	}
	o.printPlan(p)
	if !o.confirm(ctx) {
		return fmt.Errorf("migrate: dry run: %w", apperr.ErrDeclined)
	}
	fmt.Fprintln(o.out, "Dry run complete: no files were changed. Run without --dry-run to migrate.")
	return nil
}

// resumable loads an unfinished checkpoint. A completed one is ignored.
func (o *Orchestrator) resumable() (*checkpoint.State, error) {
	state, err := o.checkpoints.Load()
	if err != nil {
		return nil, err
	}
	if state == nil || state.CurrentPhase == checkpoint.PhaseCompleted {
		return nil, nil
	}
	return state, nil
}

func (o *Orchestrator) execute(ctx context.Context, opts Options) (sum *Summary, err error) {
	var backupDir string
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migrate: panic: %v", r)
		}
		err = cancelled(ctx, err)
		if apperr.IsFatal(err) {
			o.fail(err, backupDir)
		}
	}()

	log := o.phase(checkpoint.PhaseScan)
	root := o.cfg.Root

	if locked, err := o.lock.Check(); err != nil {
		return nil, err
	} else if locked {
		return nil, fmt.Errorf("migrate: another migration holds the lock; if it crashed, run with --clear-lock: %w", apperr.ErrConcurrency)
	}

	state, err := o.resumable()
	if err != nil {
		return nil, err
	}
	switch {
	case state != nil && !opts.Resume:
		return nil, fmt.Errorf("migrate: interrupted migration %s found; run with --resume to continue it: %w",
			state.MigrationID, apperr.ErrValidation)
	case state == nil && opts.Resume:
		log.Warn("no checkpoint to resume, starting a fresh migration")
	case state != nil:
		log.Info("resuming migration",
			slog.String("migration_id", state.MigrationID),
			slog.Int("processed", state.ProcessedCount))
		backupDir = state.BackupDir
	}

	destRoot := o.degraded.OutputDirectory()
	if destRoot != root {
		log.Warn("degraded mode active, migrating into fallback root", slog.String("root", destRoot))
	}

	p, err := o.scan(ctx, root, destRoot, state)
	if err != nil {
		return nil, err
	}
	o.printPlan(p)
	if !opts.Force && !o.confirm(ctx) {
		return nil, fmt.Errorf("migrate: %w", apperr.ErrDeclined)
	}

	if _, err := o.preflight.Run(root); err != nil {
		return nil, err
	}

	backupDir, err = o.prepareBackup(ctx, root, opts.BackupDir, state)
	if err != nil {
		return nil, err
	}

	if state == nil {
		state = checkpoint.NewState(o.newID(), o.now())
	}
	if err := o.lock.Acquire(state.MigrationID); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := o.lock.Clear(); cerr != nil {
			o.phase(checkpoint.PhaseMigrate).Error("could not release lock", slog.String("error", cerr.Error()))
		}
	}()
	o.rememberNames(p)

	state.BackupDir = backupDir
	state.TotalFiles = len(p.entries) + p.resumed
	state.CurrentPhase = checkpoint.PhaseMigrate
	if err := o.checkpoints.Write(state); err != nil {
		return nil, err
	}
	return o.moveAll(ctx, state, p)
}

// prepareBackup reuses the backup of a resumed migration after checking it
// against its manifest, or creates and verifies a new one.
func (o *Orchestrator) prepareBackup(ctx context.Context, root, requested string, state *checkpoint.State) (string, error) {
	log := o.phase(checkpoint.PhaseBackup)

	if state != nil && state.BackupDir != "" {
		res, err := backup.VerifyManifest(ctx, state.BackupDir)
		if err != nil {
			return "", err
		}
		if err := res.Err(); err != nil {
			return "", fmt.Errorf("migrate: backup %s of the resumed migration is damaged; run --verify before continuing: %w", state.BackupDir, err)
		}
		log.Info("reusing verified backup", slog.String("backup_dir", state.BackupDir))
		return state.BackupDir, nil
	}

	dir := requested
	if dir == "" {
		dir = fmt.Sprintf("%s.backup-%s", filepath.Clean(root), o.now().UTC().Format("20060102-150405"))
	}
	if _, err := backup.Create(ctx, root, dir, log); err != nil {
		return "", err
	}
	res, err := backup.Verify(ctx, root, dir)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("migrate: backup %s does not match %s; nothing was moved: %w", dir, root, err)
	}
	log.Info("backup verified", slog.String("backup_dir", dir), slog.Int("files", res.TotalChecked))
	return dir, nil
}

// moveAll processes the plan sequentially. Per-file failures are logged and
// counted; cancellation pauses the run with a final checkpoint.
func (o *Orchestrator) moveAll(ctx context.Context, state *checkpoint.State, p *plan) (*Summary, error) {
	log := o.phase(checkpoint.PhaseMigrate)
	sum := &Summary{
		MigrationID: state.MigrationID,
		Planned:     len(p.entries),
		Resumed:     p.resumed,
		BackupDir:   state.BackupDir,
	}

	var moved []string
	pending := 0
	for _, e := range p.entries {
		if ctx.Err() != nil {
			return sum, o.pause(state)
		}
		if e.err != nil {
			sum.Failed = append(sum.Failed, e.rel)
			continue
		}

		if e.path.InPlace() {
			sum.InPlace++
		} else {
			if err := o.move(ctx, e.path.Source, e.path.Destination, o.cfg.MoveTimeout); err != nil {
				if ctx.Err() != nil {
					return sum, o.pause(state)
				}
				log.Warn("move failed", slog.String("path", e.rel), slog.String("error", err.Error()))
				sum.Failed = append(sum.Failed, e.rel)
				continue
			}
			o.recordMove(ctx, log, state.MigrationID, e)
			moved = append(moved, e.rel)
			sum.Moved++
			log.Debug("moved", slog.String("path", e.rel), slog.String("destination", e.path.Destination))
		}

		state.MarkProcessed(e.rel)
		pending++
		if pending >= o.cfg.CheckpointInterval {
			if err := o.checkpoints.Write(state); err != nil {
				return sum, err
			}
			log.Info("checkpoint written", slog.Int("processed", state.ProcessedCount), slog.Int("total", state.TotalFiles))
			pending = 0
		}
	}

	cleanupEmptyDirs(p.root, moved)

	if len(sum.Failed) > 0 {
		if err := o.checkpoints.Write(state); err != nil {
			return sum, err
		}
		o.printSummary(sum)
		return sum, fmt.Errorf("migrate: %d of %d files were not migrated; see migration.log, fix them and run with --resume: %w",
			len(sum.Failed), sum.Planned, apperr.ErrPartial)
	}

	state.CurrentPhase = checkpoint.PhaseCompleted
	if err := o.checkpoints.Write(state); err != nil {
		return sum, err
	}
	if o.degraded.IsDegraded() {
		if err := o.degraded.Clear(); err != nil {
			log.Error("could not clear degraded mode", slog.String("error", err.Error()))
		} else {
			log.Info("degraded mode cleared after successful migration")
		}
	}
	o.printSummary(sum)
	log.Info("migration complete",
		slog.String("migration_id", sum.MigrationID),
		slog.Int("moved", sum.Moved),
		slog.Int("in_place", sum.InPlace))
	return sum, nil
}

func (o *Orchestrator) recordMove(ctx context.Context, log *slog.Logger, migrationID string, e entry) {
	if o.journal == nil {
		return
	}
	sum, err := checksum.File(e.path.Destination)
	if err == nil {
		err = o.journal.RecordMove(ctx, index.Move{
			MigrationID: migrationID,
			Source:      e.rel,
			Destination: e.path.Destination,
			Checksum:    sum,
			MovedAt:     o.now(),
		})
	}
	if err != nil {
		log.Warn("move not journalled", slog.String("path", e.rel), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) pause(state *checkpoint.State) error {
	log := o.phase(checkpoint.PhasePaused)
	state.CurrentPhase = checkpoint.PhasePaused
	if err := o.checkpoints.Write(state); err != nil {
		log.Error("final checkpoint failed", slog.String("error", err.Error()))
	}
	log.Info("migration paused", slog.Int("processed", state.ProcessedCount), slog.Int("total", state.TotalFiles))
	fmt.Fprintln(o.out, "Migration paused. Run with --resume to continue.")
	return fmt.Errorf("migrate: interrupted after %d of %d files: %w", state.ProcessedCount, state.TotalFiles, apperr.ErrCancelled)
}

func (o *Orchestrator) printSummary(sum *Summary) {
	fmt.Fprintf(o.out, "Migration %s: moved %d, already in place %d, previously done %d, failed %d\n",
		sum.MigrationID, sum.Moved, sum.InPlace, sum.Resumed, len(sum.Failed))
	if sum.BackupDir != "" {
		fmt.Fprintf(o.out, "Backup: %s\n", sum.BackupDir)
	}
}
