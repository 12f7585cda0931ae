package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval backs up fsnotify on filesystems that drop events.
var pollInterval = time.Second

// WaitReleased blocks until the lock file in stateDir is gone or ctx ends.
func WaitReleased(ctx context.Context, stateDir string) error {
	lockPath := filepath.Join(stateDir, FileName)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("lock: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(stateDir); err != nil {
		return fmt.Errorf("lock: watch %s: %w", stateDir, err)
	}

	// Checked after Add so a release between stat and watch is not missed.
	if released(lockPath) {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if released(lockPath) {
				return nil
			}
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("lock: watcher closed")
			}
			if filepath.Clean(ev.Name) != lockPath {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && released(lockPath) {
				return nil
			}
		case watchErr, ok := <-w.Errors:
			if !ok {
				return errors.New("lock: watcher closed")
			}
			return fmt.Errorf("lock: watcher: %w", watchErr)
		}
	}
}

func released(lockPath string) bool {
	_, err := os.Stat(lockPath)
	return errors.Is(err, fs.ErrNotExist)
}
