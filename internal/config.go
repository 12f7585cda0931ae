package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/relayout/internal/filename"
	"github.com/starford/relayout/internal/migrate"
	"github.com/starford/relayout/internal/mover"
	"github.com/starford/relayout/internal/preflight"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Tree      TreeConfig        `yaml:"tree"`
	Migration MigrationConfig   `yaml:"migration"`
	Index     IndexConfig       `yaml:"index"`
	Rollback  RollbackConfig    `yaml:"rollback"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Tree.Validate(); err != nil {
		return fmt.Errorf("tree: %w", err)
	}
	if err := c.Migration.Validate(); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	return c.Index.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile receives the structured JSON log, relative to Tree.WorkDir
	// unless absolute.
	LogFile string `yaml:"log_file"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFile, validation.Required),
	)
}

// TreeConfig locates the knowledge tree and the migration state.
type TreeConfig struct {
	Root         string `yaml:"root"`
	DegradedRoot string `yaml:"degraded_root"`
	// WorkDir holds the marker files, the real-name cache and the log.
	WorkDir string `yaml:"work_dir"`
}

// Validate validates the tree configuration.
func (c *TreeConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.DegradedRoot, validation.Required),
		validation.Field(&c.WorkDir, validation.Required),
	); err != nil {
		return err
	}
	if c.Root == c.DegradedRoot {
		return fmt.Errorf("degraded_root must differ from root")
	}
	return nil
}

// MigrationConfig tunes the migration run.
type MigrationConfig struct {
	CheckpointInterval int              `yaml:"checkpoint_interval"`
	MoveTimeout        time.Duration    `yaml:"move_timeout"`
	SpaceMultiplier    float64          `yaml:"space_multiplier"`
	DiskSpacePolicy    preflight.Policy `yaml:"disk_space_policy"`
	MaxPathLength      int              `yaml:"max_path_length"`
	MaxNameLength      int              `yaml:"max_name_length"`
}

// Validate validates the migration configuration.
func (c *MigrationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CheckpointInterval, validation.Required, validation.Min(1)),
		validation.Field(&c.MoveTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SpaceMultiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&c.DiskSpacePolicy, validation.Required, validation.In(preflight.FailOpen, preflight.FailClosed)),
		validation.Field(&c.MaxPathLength, validation.Required, validation.Min(64)),
		validation.Field(&c.MaxNameLength, validation.Required, validation.Min(32)),
	)
}

// IndexConfig holds the SQLite index location.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RollbackConfig configures the post-rollback build check.
type RollbackConfig struct {
	// BuildCommand, when set, runs through sh inside the restored root after
	// the index rebuild.
	BuildCommand string `yaml:"build_command"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile:  "migration.log",
		},
		Tree: TreeConfig{
			Root:         "./knowledge",
			DegradedRoot: "./knowledge_degraded",
			WorkDir:      ".",
		},
		Migration: MigrationConfig{
			CheckpointInterval: migrate.DefaultCheckpointInterval,
			MoveTimeout:        mover.DefaultTimeout,
			SpaceMultiplier:    preflight.DefaultMultiplier,
			DiskSpacePolicy:    preflight.FailOpen,
			MaxPathLength:      filename.MaxPathLength,
			MaxNameLength:      filename.MaxNameLength,
		},
		Index: IndexConfig{
			Path: "./.relayout-index.db",
		},
	}
}
