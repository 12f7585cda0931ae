// Package backup copies a knowledge tree aside with a checksum manifest and
// proves, file by file, that a copy is byte-identical to its source.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/relayout/internal/apperr"
)

// ManifestName is written at the root of every backup.
const ManifestName = ".backup-manifest.json"

const manifestVersion = 1

// Manifest lists every file of a backup with its SHA-256.
type Manifest struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	Source    string            `json:"source"`
	Files     map[string]string `json:"files"`
}

// Create copies src into dst, which must not exist yet, and writes the
// manifest. The caller verifies the result with Verify before relying on it.
func Create(ctx context.Context, src, dst string, logger *slog.Logger) (*Manifest, error) {
	if _, err := os.Stat(dst); err == nil {
		return nil, fmt.Errorf("backup: destination %s already exists: %w", dst, apperr.ErrPreflight)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("backup: stat %s: %w", dst, err)
	}

	logger.Info("backup: copying tree", slog.String("source", src), slog.String("destination", dst))
	files, err := CopyTree(ctx, src, dst)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:   manifestVersion,
		CreatedAt: time.Now().UTC(),
		Source:    src,
		Files:     files,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dst, ManifestName), data, 0o644); err != nil {
		return nil, fmt.Errorf("backup: write manifest: %w", err)
	}
	logger.Info("backup: created", slog.String("destination", dst), slog.Int("files", len(files)))
	return m, nil
}

// LoadManifest reads the manifest of the backup at dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("backup: %s has no %s: %w", dir, ManifestName, apperr.ErrIntegrity)
		}
		return nil, fmt.Errorf("backup: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("backup: decode manifest: %v: %w", err, apperr.ErrIntegrity)
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	return &m, nil
}

// CopyTree copies every regular file under src to the same relative path
// under dst and returns the SHA-256 of each copied file. A manifest at the
// root of src is not copied.
func CopyTree(ctx context.Context, src, dst string) (map[string]string, error) {
	files, err := ListFiles(src)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("backup: mkdir %s: %w", dst, err)
	}
	sums := make(map[string]string, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := copyFile(filepath.Join(src, rel), filepath.Join(dst, rel))
		if err != nil {
			return nil, err
		}
		sums[filepath.ToSlash(rel)] = sum
	}
	return sums, nil
}

// ListFiles returns the relative paths of all regular files under root in
// lexical order, leaving out a backup manifest at the root.
func ListFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == ManifestName {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", root, err)
	}
	return out, nil
}

func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("backup: open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("backup: stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("backup: mkdir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("backup: create %s: %w", dst, err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("backup: copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("backup: fsync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("backup: close %s: %w", dst, err)
	}
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return hex.EncodeToString(h.Sum(nil)), nil
}
