// Package storage defines the small whole-file state store behind the
// migration's marker files (lock, failure marker, checkpoint, caches).
package storage

// Provider stores named blobs. Every write replaces the whole blob
// atomically; readers never observe partial content.
type Provider interface {
	// Read returns the blob stored under name. A missing blob yields an
	// error satisfying errors.Is(err, fs.ErrNotExist).
	Read(name string) ([]byte, error)
	// Write atomically replaces the blob stored under name.
	Write(name string, content []byte) error
	// Create stores content only if name does not exist yet, failing with
	// apperr.ErrAlreadyExists otherwise.
	Create(name string, content []byte) error
	// Delete removes name. Deleting a missing blob is not an error.
	Delete(name string) error
	// Exists reports whether name is present.
	Exists(name string) (bool, error)
}

var (
	_ Provider = (*FS)(nil)
	_ Provider = (*Memory)(nil)
)
