// Package livewriter is the contract the live content writer follows to
// share the knowledge tree with a running migration: check the lock before
// every write and write only under the current output root.
package livewriter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/degraded"
	"github.com/starford/relayout/internal/lock"
	"github.com/starford/relayout/internal/storage"
)

// Guard gates writes of the live content writer.
type Guard struct {
	lock     *lock.Lock
	degraded *degraded.Controller
	stateDir string
	out      io.Writer
	logger   *slog.Logger
}

// New returns a Guard reading the markers in state. stateDir is the
// directory behind state, watched by Wait. Warnings go to out.
func New(state storage.Provider, stateDir, primary, fallback string, out io.Writer, logger *slog.Logger) *Guard {
	return &Guard{
		lock:     lock.New(state),
		degraded: degraded.New(state, primary, fallback),
		stateDir: stateDir,
		out:      out,
		logger:   logger.With(slog.String("phase", "livewriter")),
	}
}

// Prepare returns the root new content must be written to. While a
// migration holds the lock it prints a warning and fails with
// apperr.ErrConcurrency; the caller exits without writing or queueing.
func (g *Guard) Prepare() (string, error) {
	locked, err := g.lock.Check()
	if err != nil {
		return "", fmt.Errorf("livewriter: check lock: %w", err)
	}
	if locked {
		holder := "unknown migration"
		if info, err := g.lock.Holder(); err == nil {
			holder = fmt.Sprintf("migration %s (pid %d)", info.MigrationID, info.PID)
		}
		fmt.Fprintf(g.out, "Warning: %s is reorganizing the knowledge tree. Nothing was written; try again after it finishes.\n", holder)
		g.logger.Warn("write refused, migration in progress", slog.String("holder", holder))
		return "", fmt.Errorf("livewriter: %s in progress: %w", holder, apperr.ErrConcurrency)
	}

	dir := g.degraded.OutputDirectory()
	if g.degraded.IsDegraded() {
		g.logger.Warn("degraded mode active, writing to fallback root", slog.String("root", dir))
	}
	return dir, nil
}

// WriteNote stores content at rel under the current output root. The lock
// is checked immediately before the write.
func (g *Guard) WriteNote(rel string, content []byte) (string, error) {
	dir, err := g.Prepare()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("livewriter: create output root: %w", err)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return "", fmt.Errorf("livewriter: open output root: %w", err)
	}
	if err := fs.Write(rel, content); err != nil {
		return "", fmt.Errorf("livewriter: write %s: %w", rel, err)
	}
	g.logger.Debug("note written", slog.String("root", dir), slog.String("path", rel))
	return dir, nil
}

// Wait blocks until no migration holds the lock or ctx ends.
func (g *Guard) Wait(ctx context.Context) error {
	return lock.WaitReleased(ctx, g.stateDir)
}
