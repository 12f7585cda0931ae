// Package preflight measures the source tree and the free disk space before
// a migration is allowed to touch anything.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/starford/relayout/internal/apperr"
)

// Policy decides what happens when free space cannot be queried.
type Policy string

// Disk space policies.
const (
	FailOpen   Policy = "fail_open"
	FailClosed Policy = "fail_closed"
)

// DefaultMultiplier covers the original, its backup and a half-size margin.
const DefaultMultiplier = 2.5

// ErrUnsupported is returned by the platform space query where none exists.
var ErrUnsupported = errors.New("preflight: disk space query not supported on this platform")

// SpaceFunc returns the bytes available to the current user at path.
type SpaceFunc func(path string) (uint64, error)

// Result is the outcome of a successful preflight. Failures are always
// returned as errors, never as an insufficient Result.
type Result struct {
	DirectorySize  int64 `json:"directorySize"`
	AvailableSpace int64 `json:"availableSpace"` // -1 when unknown
	Sufficient     bool  `json:"sufficient"`
	FileCount      int   `json:"fileCount"`
}

// Checker runs the preflight checks.
type Checker struct {
	Multiplier float64
	Policy     Policy
	Space      SpaceFunc
	Logger     *slog.Logger
}

// NewChecker returns a Checker using the platform space query.
func NewChecker(logger *slog.Logger, multiplier float64, policy Policy) *Checker {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if policy == "" {
		policy = FailOpen
	}
	return &Checker{
		Multiplier: multiplier,
		Policy:     policy,
		Space:      availableSpace,
		Logger:     logger,
	}
}

// Run scans dir and checks that its filesystem can hold the migration.
func (c *Checker) Run(dir string) (*Result, error) {
	size, count, err := c.ScanDirectory(dir)
	if err != nil {
		return nil, err
	}
	available, err := c.CheckDiskSpace(dir, size)
	if err != nil {
		return nil, err
	}
	return &Result{
		DirectorySize:  size,
		AvailableSpace: available,
		Sufficient:     true,
		FileCount:      count,
	}, nil
}

// ScanDirectory returns the total size and number of regular files under dir.
// Unreadable entries are logged and skipped; only an unreadable root fails.
func (c *Checker) ScanDirectory(dir string) (int64, int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("preflight: source root %s: %v: %w", dir, err, apperr.ErrPreflight)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("preflight: source root %s is not a directory: %w", dir, apperr.ErrPreflight)
	}

	var size int64
	var count int
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir {
				return walkErr
			}
			c.Logger.Warn("preflight: skipping unreadable entry", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			c.Logger.Warn("preflight: skipping unreadable file", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		size += fi.Size()
		count++
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("preflight: scan %s: %v: %w", dir, err, apperr.ErrPreflight)
	}
	return size, count, nil
}

// CheckDiskSpace verifies that the filesystem holding dir has room for
// directorySize times the multiplier. It returns the available bytes, or -1
// when the platform cannot report them and the policy is FailOpen.
func (c *Checker) CheckDiskSpace(dir string, directorySize int64) (int64, error) {
	required := int64(math.Ceil(float64(directorySize) * c.Multiplier))

	avail, err := c.Space(dir)
	if err != nil {
		if errors.Is(err, ErrUnsupported) && c.Policy == FailOpen {
			c.Logger.Warn("preflight: disk space check skipped",
				slog.String("reason", err.Error()),
				slog.String("required", FormatGB(required)))
			return -1, nil
		}
		return 0, fmt.Errorf("preflight: query free space on %s: %v: %w", dir, err, apperr.ErrPreflight)
	}

	available := int64(min(avail, uint64(math.MaxInt64)))
	if available <= required {
		return 0, fmt.Errorf("preflight: insufficient disk space: need %s, have %s: %w",
			FormatGB(required), FormatGB(available), apperr.ErrPreflight)
	}
	c.Logger.Info("preflight: disk space ok",
		slog.String("required", FormatGB(required)),
		slog.String("available", FormatGB(available)))
	return available, nil
}

// FormatGB renders a byte count in gigabytes.
func FormatGB(bytes int64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
}
