// Package apperr defines the error taxonomy shared by the migration and
// rollback flows, and its mapping onto process exit codes.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks bad handles, slugs or path lengths. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrPreflight aborts a run before any destructive action.
	ErrPreflight = errors.New("preflight failed")
	// ErrTransientIO is a per-file failure; the file can be retried with --resume.
	ErrTransientIO = errors.New("transient i/o failure")
	// ErrIntegrity blocks every operation that depends on the affected backup.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrConcurrency means the migration lock is already held.
	ErrConcurrency = errors.New("migration lock held")
	ErrCancelled   = errors.New("cancelled")
	ErrDeclined    = errors.New("declined by user")
	// ErrPartial reports a completed run in which some files failed.
	ErrPartial = errors.New("migration incomplete")
)

// Exit codes.
const (
	ExitOK         = 0
	ExitRuntime    = 1
	ExitValidation = 2
	ExitDeclined   = 3
)

// ExitCode maps err onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrDeclined):
		return ExitDeclined
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPreflight), errors.Is(err, ErrConcurrency):
		return ExitValidation
	default:
		return ExitRuntime
	}
}

// IsFatal reports whether err falls outside the known taxonomy. Only fatal
// errors put the tree into degraded mode.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, known := range []error{
		ErrValidation, ErrPreflight, ErrTransientIO, ErrIntegrity,
		ErrConcurrency, ErrCancelled, ErrDeclined, ErrPartial,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
