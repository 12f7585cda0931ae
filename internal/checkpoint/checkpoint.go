// Package checkpoint persists migration progress so an interrupted run can
// continue with --resume.
//
// A file recorded as processed is trusted on resume without looking at the
// filesystem again; drift introduced between runs is caught by --verify.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/starford/relayout/internal/storage"
)

// FileName is the checkpoint name inside the state directory.
const FileName = ".migration-state.json"

// Phases.
const (
	PhaseScan      = "scan"
	PhaseBackup    = "backup"
	PhaseMigrate   = "migrate"
	PhaseCompleted = "completed"
	PhasePaused    = "paused"
)

// State is the durable progress record of one migration.
type State struct {
	MigrationID    string              `json:"migrationId"`
	StartedAt      time.Time           `json:"startedAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	TotalFiles     int                 `json:"totalFiles"`
	ProcessedCount int                 `json:"processedCount"`
	ProcessedFiles map[string]struct{} `json:"-"`
	CurrentPhase   string              `json:"currentPhase"`
	BackupDir      string              `json:"backupDir,omitempty"`
}

// NewState starts a fresh record.
func NewState(migrationID string, now time.Time) *State {
	return &State{
		MigrationID:    migrationID,
		StartedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
		ProcessedFiles: make(map[string]struct{}),
		CurrentPhase:   PhaseScan,
	}
}

// MarkProcessed records source as done.
func (s *State) MarkProcessed(source string) {
	if s.ProcessedFiles == nil {
		s.ProcessedFiles = make(map[string]struct{})
	}
	if _, ok := s.ProcessedFiles[source]; ok {
		return
	}
	s.ProcessedFiles[source] = struct{}{}
	s.ProcessedCount = len(s.ProcessedFiles)
}

// IsProcessed reports whether source was recorded as done.
func (s *State) IsProcessed(source string) bool {
	_, ok := s.ProcessedFiles[source]
	return ok
}

// Processed returns the processed identifiers in sorted order.
func (s *State) Processed() []string {
	out := make([]string, 0, len(s.ProcessedFiles))
	for p := range s.ProcessedFiles {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type stateJSON struct {
	*alias
	ProcessedFiles []string `json:"processedFiles"`
}

type alias State

// MarshalJSON writes processedFiles as a sorted array.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{alias: (*alias)(s), ProcessedFiles: s.Processed()})
}

// UnmarshalJSON rebuilds the processed set from its array form.
func (s *State) UnmarshalJSON(data []byte) error {
	aux := stateJSON{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ProcessedFiles = make(map[string]struct{}, len(aux.ProcessedFiles))
	for _, p := range aux.ProcessedFiles {
		s.ProcessedFiles[p] = struct{}{}
	}
	s.ProcessedCount = len(s.ProcessedFiles)
	return nil
}

// Manager reads and writes the checkpoint file.
type Manager struct {
	store storage.Provider
	now   func() time.Time
}

// NewManager returns a Manager backed by store.
func NewManager(store storage.Provider) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Write stamps updatedAt and replaces the checkpoint atomically.
func (m *Manager) Write(s *State) error {
	s.UpdatedAt = m.now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	if err := m.store.Write(FileName, data); err != nil {
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	return nil
}

// Load returns the saved state, or nil when no checkpoint exists.
func (m *Manager) Load() (*State, error) {
	data, err := m.store.Read(FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", FileName, err)
	}
	return &s, nil
}

// Clear removes the checkpoint.
func (m *Manager) Clear() error {
	if err := m.store.Delete(FileName); err != nil {
		return fmt.Errorf("checkpoint: clear: %w", err)
	}
	return nil
}
