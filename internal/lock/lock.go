// Package lock implements the migration lock: a single marker file whose
// presence means a migration owns the knowledge tree.
//
// The lock is deliberately not cleared when its holder crashes. Removing a
// stale lock is an explicit operator action (migrate --clear-lock).
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/storage"
)

// FileName is the marker name inside the state directory.
const FileName = ".migration-lock"

// Info is the lock file payload.
type Info struct {
	MigrationID string    `json:"migrationId"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

// Lock manages the lock marker in a state store.
type Lock struct {
	store storage.Provider
	now   func() time.Time
}

// New returns a Lock backed by store.
func New(store storage.Provider) *Lock {
	return &Lock{store: store, now: time.Now}
}

// Acquire creates the lock for migrationID. It fails with
// apperr.ErrConcurrency when any lock already exists.
func (l *Lock) Acquire(migrationID string) error {
	data, err := json.MarshalIndent(Info{
		MigrationID: migrationID,
		PID:         os.Getpid(),
		AcquiredAt:  l.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("lock: encode: %w", err)
	}
	if err := l.store.Create(FileName, data); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return fmt.Errorf("lock: %s already present (%s): %w", FileName, l.describeHolder(), apperr.ErrConcurrency)
		}
		return fmt.Errorf("lock: acquire: %w", err)
	}
	return nil
}

// Check reports whether a lock is present. Staleness is not inspected.
func (l *Lock) Check() (bool, error) {
	return l.store.Exists(FileName)
}

// Holder returns the current lock payload, or apperr.ErrNotFound.
func (l *Lock) Holder() (*Info, error) {
	data, err := l.store.Read(FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("lock: read: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("lock: decode: %w", err)
	}
	return &info, nil
}

// Clear removes the lock.
func (l *Lock) Clear() error {
	if err := l.store.Delete(FileName); err != nil {
		return fmt.Errorf("lock: clear: %w", err)
	}
	return nil
}

func (l *Lock) describeHolder() string {
	info, err := l.Holder()
	if err != nil {
		return "holder unknown"
	}
	return fmt.Sprintf("migration %s, pid %d, since %s",
		info.MigrationID, info.PID, info.AcquiredAt.Format(time.RFC3339))
}
