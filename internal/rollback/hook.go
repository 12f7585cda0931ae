package rollback

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/starford/relayout/internal/index"
)

// BuildHook confirms that a restored tree is structurally sound.
type BuildHook func(ctx context.Context, root string) error

// IndexHook rebuilds the notes index from root and fails when any note
// cannot be indexed.
func IndexHook(db *index.DB, logger *slog.Logger) BuildHook {
	return func(ctx context.Context, root string) error {
		rep, err := index.Rebuild(ctx, db, root, logger)
		if err != nil {
			return err
		}
		logger.Info("index rebuilt",
			slog.Int("indexed", rep.Indexed),
			slog.Int("unchanged", rep.Unchanged),
			slog.Int("removed", rep.Removed),
			slog.Int("failed", len(rep.Failed)))
		return rep.Err()
	}
}

// CommandHook runs command through sh inside root.
func CommandHook(command string) BuildHook {
	return func(ctx context.Context, root string) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = root
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%q: %w: %s", command, err, bytes.TrimSpace(out.Bytes()))
		}
		return nil
	}
}

// Chain runs hooks in order, stopping at the first failure.
func Chain(hooks ...BuildHook) BuildHook {
	return func(ctx context.Context, root string) error {
		for _, h := range hooks {
			if h == nil {
				continue
			}
			if err := h(ctx, root); err != nil {
				return err
			}
		}
		return nil
	}
}
