// Package degraded tracks whether a migration failed without recovery. While
// the failure marker exists every writer, migration and live alike, targets
// the fallback root instead of the primary knowledge tree.
package degraded

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/storage"
)

// FileName is the failure marker inside the state directory.
const FileName = ".migration-failed"

// Marker is the failure marker payload.
type Marker struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Controller reads and writes the failure marker.
type Controller struct {
	store    storage.Provider
	primary  string
	fallback string
	now      func() time.Time
}

// New returns a Controller choosing between the primary and fallback output roots.
func New(store storage.Provider, primary, fallback string) *Controller {
	return &Controller{store: store, primary: primary, fallback: fallback, now: time.Now}
}

// MarkFailed records cause and switches all writers to the fallback root.
func (c *Controller) MarkFailed(cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	data, err := json.MarshalIndent(Marker{Error: msg, Timestamp: c.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("degraded: encode: %w", err)
	}
	if err := c.store.Write(FileName, data); err != nil {
		return fmt.Errorf("degraded: write marker: %w", err)
	}
	return nil
}

// IsDegraded reports whether the failure marker exists. A marker that cannot
// be checked counts as present.
func (c *Controller) IsDegraded() bool {
	ok, err := c.store.Exists(FileName)
	return ok || err != nil
}

// OutputDirectory returns the root new content must be written to.
func (c *Controller) OutputDirectory() string {
	if c.IsDegraded() {
		return c.fallback
	}
	return c.primary
}

// Marker returns the recorded failure, or apperr.ErrNotFound.
func (c *Controller) Marker() (*Marker, error) {
	data, err := c.store.Read(FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("degraded: read marker: %w", err)
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("degraded: decode marker: %w", err)
	}
	return &m, nil
}

// Clear removes the marker and returns writers to the primary root.
func (c *Controller) Clear() error {
	if err := c.store.Delete(FileName); err != nil {
		return fmt.Errorf("degraded: clear: %w", err)
	}
	return nil
}
