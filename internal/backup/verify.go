package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/checksum"
)

// Mismatch describes one file whose backup copy differs or is missing.
// BackupHash is nil when the file is missing from the backup.
type Mismatch struct {
	Path         string  `json:"path"`
	OriginalHash string  `json:"originalHash"`
	BackupHash   *string `json:"backupHash"`
}

// VerificationResult summarizes a tree-to-backup comparison.
type VerificationResult struct {
	TotalChecked    int        `json:"totalChecked"`
	Matched         int        `json:"matched"`
	Mismatched      int        `json:"mismatched"`
	MissingInBackup int        `json:"missingInBackup"`
	Mismatches      []Mismatch `json:"mismatches"`
	OriginalCount   int        `json:"originalCount"`
	BackupCount     int        `json:"backupCount"`
}

// Valid reports whether the backup is byte-identical to the original: no
// mismatches, nothing missing, and no extra or absent files on either side.
func (r *VerificationResult) Valid() bool {
	return r.Mismatched == 0 && r.MissingInBackup == 0 && r.OriginalCount == r.BackupCount
}

// Err returns nil for a valid result and an apperr.ErrIntegrity error otherwise.
func (r *VerificationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("backup: %d mismatched, %d missing, %d original files vs %d backup files: %w",
		r.Mismatched, r.MissingInBackup, r.OriginalCount, r.BackupCount, apperr.ErrIntegrity)
}

type fileCheck struct {
	rel      string
	original string
	backup   *string
}

// hashWorkers bounds concurrent hashing.
var hashWorkers = runtime.NumCPU()

// Verify compares every file under originalDir with the same relative path
// under backupDir.
func Verify(ctx context.Context, originalDir, backupDir string) (*VerificationResult, error) {
	originals, err := ListFiles(originalDir)
	if err != nil {
		return nil, err
	}
	backups, err := ListFiles(backupDir)
	if err != nil {
		return nil, err
	}

	checks := make([]fileCheck, len(originals))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for i, rel := range originals {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			orig, err := checksum.File(filepath.Join(originalDir, rel))
			if err != nil {
				return err
			}
			checks[i] = fileCheck{rel: rel, original: orig}
			bak, err := checksum.File(filepath.Join(backupDir, rel))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			checks[i].backup = &bak
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backup: verify: %w", err)
	}

	res := summarize(checks)
	res.OriginalCount = len(originals)
	res.BackupCount = len(backups)
	return res, nil
}

// VerifyManifest checks the backup at dir against its own manifest. Files
// present on disk but absent from the manifest make the result invalid.
func VerifyManifest(ctx context.Context, dir string) (*VerificationResult, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("backup: %s is not a readable directory: %w", dir, apperr.ErrPreflight)
	}
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	onDisk, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	rels := make([]string, 0, len(m.Files))
	for rel := range m.Files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	checks := make([]fileCheck, len(rels))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hashWorkers)
	for i, rel := range rels {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			checks[i] = fileCheck{rel: rel, original: m.Files[rel]}
			sum, err := checksum.File(filepath.Join(dir, filepath.FromSlash(rel)))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			checks[i].backup = &sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backup: verify manifest: %w", err)
	}

	res := summarize(checks)
	res.OriginalCount = len(rels)
	res.BackupCount = len(onDisk)
	return res, nil
}

func summarize(checks []fileCheck) *VerificationResult {
	res := &VerificationResult{Mismatches: []Mismatch{}}
	for _, c := range checks {
		res.TotalChecked++
		switch {
		case c.backup == nil:
			res.MissingInBackup++
			res.Mismatches = append(res.Mismatches, Mismatch{Path: filepath.ToSlash(c.rel), OriginalHash: c.original})
		case *c.backup != c.original:
			res.Mismatched++
			res.Mismatches = append(res.Mismatches, Mismatch{Path: filepath.ToSlash(c.rel), OriginalHash: c.original, BackupHash: c.backup})
		default:
			res.Matched++
		}
	}
	return res
}
