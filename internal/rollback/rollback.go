// Package rollback restores a verified backup over the knowledge tree.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/backup"
	"github.com/starford/relayout/internal/checkpoint"
	"github.com/starford/relayout/internal/degraded"
	"github.com/starford/relayout/internal/lock"
	"github.com/starford/relayout/internal/storage"
)

// Executor restores backups of one knowledge tree.
type Executor struct {
	root        string
	lock        *lock.Lock
	checkpoints *checkpoint.Manager
	degraded    *degraded.Controller
	hook        BuildHook
	out         io.Writer
	logger      *slog.Logger
	now         func() time.Time
}

// New returns an Executor for root. A rollback that fails after touching root
// switches writers to fallback. hook may be nil.
func New(root, fallback string, state storage.Provider, hook BuildHook, out io.Writer, logger *slog.Logger) *Executor {
	return &Executor{
		root:        root,
		lock:        lock.New(state),
		checkpoints: checkpoint.NewManager(state),
		degraded:    degraded.New(state, root, fallback),
		hook:        hook,
		out:         out,
		logger:      logger.With(slog.String("phase", "rollback")),
		now:         time.Now,
	}
}

// Verify checks that backupDir is internally checksum-sound.
func (e *Executor) Verify(ctx context.Context, backupDir string) (*backup.VerificationResult, error) {
	if backupDir == "" {
		return nil, fmt.Errorf("rollback: --backup-dir is required: %w", apperr.ErrValidation)
	}
	res, err := backup.VerifyManifest(ctx, backupDir)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(e.out, "Backup %s: %d checked, %d matched, %d mismatched, %d missing\n",
		backupDir, res.TotalChecked, res.Matched, res.Mismatched, res.MissingInBackup)
	e.logger.Info("backup verified",
		slog.String("backup_dir", backupDir),
		slog.Int("checked", res.TotalChecked),
		slog.Bool("valid", res.Valid()))
	if err := res.Err(); err != nil {
		return res, fmt.Errorf("rollback: backup %s is not usable: %w", backupDir, err)
	}
	return res, nil
}

// Rollback replaces the tree with backupDir. The current tree is first saved
// and verified as <root>.pre-rollback-<timestamp>; nothing is deleted before
// that copy is proven identical.
func (e *Executor) Rollback(ctx context.Context, backupDir string) error {
	if _, err := e.Verify(ctx, backupDir); err != nil {
		return err
	}

	id := "rollback-" + uuid.NewString()
	if err := e.lock.Acquire(id); err != nil {
		return fmt.Errorf("rollback: %w; if no migration is running, clear it with migrate --clear-lock", err)
	}
	defer func() {
		if err := e.lock.Clear(); err != nil {
			e.logger.Error("could not release lock", slog.String("error", err.Error()))
		}
	}()

	safety, err := e.saveCurrent(ctx)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(e.root); err != nil {
		return e.restoreFailed(safety, fmt.Errorf("rollback: remove %s: %w", e.root, err))
	}
	if _, err := backup.CopyTree(ctx, backupDir, e.root); err != nil {
		return e.restoreFailed(safety, fmt.Errorf("rollback: copy backup: %w", err))
	}
	res, err := backup.Verify(ctx, backupDir, e.root)
	if err != nil {
		return e.restoreFailed(safety, err)
	}
	if err := res.Err(); err != nil {
		return e.restoreFailed(safety, fmt.Errorf("rollback: restored tree differs from backup: %w", err))
	}
	e.logger.Info("tree restored", slog.String("backup_dir", backupDir), slog.Int("files", res.TotalChecked))

	if e.hook != nil {
		if err := e.hook(ctx, e.root); err != nil {
			return e.restoreFailed(safety, fmt.Errorf("rollback: build check failed: %v: %w", err, apperr.ErrIntegrity))
		}
		e.logger.Info("build check passed")
	}

	if err := e.checkpoints.Clear(); err != nil {
		e.logger.Warn("could not clear checkpoint", slog.String("error", err.Error()))
	}

	fmt.Fprintf(e.out, "Rollback complete: %s restored from %s.\n", e.root, backupDir)
	if safety != "" {
		fmt.Fprintf(e.out, "The replaced tree was saved to %s.\n", safety)
	}
	fmt.Fprintln(e.out, "If degraded mode is active, clear it with: migrate --clear-degraded")
	return nil
}

// saveCurrent copies the current tree aside and verifies the copy. A missing
// root has nothing to save.
func (e *Executor) saveCurrent(ctx context.Context) (string, error) {
	if _, err := os.Stat(e.root); errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("knowledge root missing, no safety backup taken", slog.String("root", e.root))
		return "", nil
	}
	safety := fmt.Sprintf("%s.pre-rollback-%s", filepath.Clean(e.root), e.now().UTC().Format("20060102-150405"))
	if _, err := backup.Create(ctx, e.root, safety, e.logger); err != nil {
		return "", fmt.Errorf("rollback: safety backup: %w", err)
	}
	res, err := backup.Verify(ctx, e.root, safety)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("rollback: safety backup %s does not match the current tree; nothing was changed: %w", safety, err)
	}
	e.logger.Info("safety backup verified", slog.String("path", safety))
	return safety, nil
}

// restoreFailed handles a failure after root was removed. The tree may be
// missing or partial, so writers are moved to the fallback root before the
// lock is released.
func (e *Executor) restoreFailed(safety string, err error) error {
	e.logger.Error("rollback failed", slog.String("error", err.Error()))
	if merr := e.degraded.MarkFailed(err); merr != nil {
		e.logger.Error("could not enter degraded mode", slog.String("error", merr.Error()))
	} else {
		fmt.Fprintln(e.out, "Degraded mode enabled: new content goes to the fallback root until you run migrate --clear-degraded.")
	}
	if safety != "" {
		fmt.Fprintf(e.out, "Rollback failed: %v\nThe previous tree is intact at %s; restore it with: rollback --backup-dir %s\n",
			err, safety, safety)
	}
	return err
}
