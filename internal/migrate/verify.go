package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/backup"
	"github.com/starford/relayout/internal/checkpoint"
	"github.com/starford/relayout/internal/checksum"
	"github.com/starford/relayout/internal/index"
)

// maxReported caps the per-file problems printed by verify.
const maxReported = 20

// verify checks the backup against its manifest and, when a checkpoint and
// journal exist, that every checkpointed file sits at its recorded
// destination with its recorded checksum. Nothing is modified.
func (o *Orchestrator) verify(ctx context.Context, opts Options) error {
	log := o.phase("verify")

	state, err := o.checkpoints.Load()
	if err != nil {
		return err
	}
	dir := opts.BackupDir
	if dir == "" && state != nil {
		dir = state.BackupDir
	}
	if dir == "" {
		return fmt.Errorf("migrate: no backup recorded; pass --backup-dir: %w", apperr.ErrValidation)
	}

	res, err := backup.VerifyManifest(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Backup %s: %d checked, %d matched, %d mismatched, %d missing\n",
		dir, res.TotalChecked, res.Matched, res.Mismatched, res.MissingInBackup)
	for i, m := range res.Mismatches {
		if i == maxReported {
			fmt.Fprintf(o.out, "  ... and %d more\n", len(res.Mismatches)-i)
			break
		}
		fmt.Fprintf(o.out, "  %s\n", m.Path)
	}
	log.Info("backup checked",
		slog.String("backup_dir", dir),
		slog.Int("checked", res.TotalChecked),
		slog.Int("mismatched", res.Mismatched),
		slog.Int("missing", res.MissingInBackup))

	drift := 0
	if state != nil && o.journal != nil {
		drift, err = o.verifyMoves(ctx, state)
		if err != nil {
			return err
		}
	}

	if err := res.Err(); err != nil {
		return fmt.Errorf("migrate: backup %s cannot be trusted for rollback: %w", dir, err)
	}
	if drift > 0 {
		return fmt.Errorf("migrate: %d checkpointed files are missing or changed; inspect them or restore with rollback --backup-dir %s: %w",
			drift, dir, apperr.ErrIntegrity)
	}
	fmt.Fprintln(o.out, "Verification passed.")
	return nil
}

func (o *Orchestrator) verifyMoves(ctx context.Context, state *checkpoint.State) (int, error) {
	log := o.phase("verify")
	moves, err := o.journal.Moves(ctx, state.MigrationID)
	if err != nil {
		return 0, err
	}
	bySource := make(map[string]index.Move, len(moves))
	for _, m := range moves {
		bySource[m.Source] = m
	}

	drift := 0
	report := func(rel, problem string) {
		drift++
		log.Warn("checkpointed file drifted", slog.String("path", rel), slog.String("problem", problem))
		if drift <= maxReported {
			fmt.Fprintf(o.out, "  %s: %s\n", rel, problem)
		}
	}

	for _, rel := range state.Processed() {
		if err := ctx.Err(); err != nil {
			return drift, fmt.Errorf("migrate: verify interrupted: %w", apperr.ErrCancelled)
		}
		m, ok := bySource[rel]
		if !ok {
			// Files that were already in place are not journalled.
			if _, err := os.Stat(filepath.Join(o.cfg.Root, filepath.FromSlash(rel))); err != nil {
				report(rel, "no journal entry and not found in place")
			}
			continue
		}
		sum, err := checksum.File(m.Destination)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			report(rel, "missing at "+m.Destination)
		case err != nil:
			report(rel, err.Error())
		case sum != m.Checksum:
			report(rel, "checksum changed at "+m.Destination)
		}
	}
	fmt.Fprintf(o.out, "Checkpointed files: %d checked, %d drifted\n", state.ProcessedCount, drift)
	return drift, nil
}
