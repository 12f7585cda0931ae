package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/checksum"
	"github.com/starford/relayout/internal/parser"
)

// Report summarises one Rebuild.
type Report struct {
	Indexed   int
	Unchanged int
	Removed   int
	Failed    []string
}

// Err returns an integrity error when any note could not be indexed.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("index: %d notes failed to index (first: %s): %w",
		len(r.Failed), r.Failed[0], apperr.ErrIntegrity)
}

// Rebuild walks root and brings the notes table up to date:
//   - new/changed .md files are parsed and upserted
//   - rows whose file is gone are deleted
//
// It is the structural check run after a rollback: a note that cannot be
// read or parsed is reported in Failed.
func Rebuild(ctx context.Context, db *DB, root string, logger *slog.Logger) (Report, error) {
	var rep Report

	known, err := db.AllChecksums(ctx)
	if err != nil {
		return rep, err
	}

	disk := make(map[string]struct{})
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("rebuild: walk failed", slog.String("path", path), slog.String("error", err.Error()))
			rep.Failed = append(rep.Failed, path)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		disk[rel] = struct{}{}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("rebuild: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			rep.Failed = append(rep.Failed, rel)
			return nil
		}
		cs := checksum.Sum(data)
		if known[rel] == cs {
			rep.Unchanged++
			return nil
		}
		if err := indexFile(ctx, db, rel, data, cs); err != nil {
			logger.Warn("rebuild: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			rep.Failed = append(rep.Failed, rel)
			return nil
		}
		logger.Debug("rebuild: indexed", slog.String("path", rel))
		rep.Indexed++
		return nil
	})
	if walkErr != nil {
		return rep, fmt.Errorf("index: walk %s: %w", root, walkErr)
	}

	for p := range known {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(ctx, p); err != nil {
			logger.Warn("rebuild: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("rebuild: removed stale", slog.String("path", p))
		rep.Removed++
	}
	return rep, nil
}

func indexFile(ctx context.Context, db *DB, path string, data []byte, cs string) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertNote(ctx, NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  cs,
		Tags:      res.Tags,
		UpdatedAt: res.Record.CreatedAt,
	})
}
