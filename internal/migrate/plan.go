package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/checkpoint"
	"github.com/starford/relayout/internal/models"
	"github.com/starford/relayout/internal/parser"
)

// planPreview caps the per-file lines printed with a plan.
const planPreview = 20

type entry struct {
	rel  string // source relative to the root; the checkpoint identifier
	path models.KnowledgePath
	err  error
}

type plan struct {
	root    string
	entries []entry
	resumed int
	// learned holds real names seen in frontmatter but not yet cached.
	learned map[string]string
}

func (p *plan) counts() (moves, inPlace, invalid int) {
	for _, e := range p.entries {
		switch {
		case e.err != nil:
			invalid++
		case e.path.InPlace():
			inPlace++
		default:
			moves++
		}
	}
	return moves, inPlace, invalid
}

// scan walks root and computes a destination under destRoot for every note
// not already recorded in state. Hidden files and directories are skipped.
// Per-file problems are kept on the entry; only an unreadable root fails.
// Real names found in frontmatter are collected on the plan and only cached
// by rememberNames.
func (o *Orchestrator) scan(ctx context.Context, root, destRoot string, state *checkpoint.State) (*plan, error) {
	log := o.phase(checkpoint.PhaseScan)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("migrate: knowledge root %s is not a readable directory: %w", root, apperr.ErrPreflight)
	}

	p := &plan{root: root, learned: make(map[string]string)}
	planned := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.Warn("skipping unreadable entry", slog.String("path", path), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if state != nil && state.IsProcessed(rel) {
			p.resumed++
			return nil
		}

		e := o.planFile(path, rel, destRoot, p.learned)
		if e.err == nil {
			if other, dup := planned[e.path.Destination]; dup {
				e.err = fmt.Errorf("destination %s already planned for %s: %w", e.path.Destination, other, apperr.ErrValidation)
			} else {
				planned[e.path.Destination] = rel
			}
		}
		if e.err != nil {
			log.Warn("file cannot be migrated", slog.String("path", rel), slog.String("error", e.err.Error()))
		}
		p.entries = append(p.entries, e)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("migrate: scan interrupted: %w", apperr.ErrCancelled)
		}
		return nil, fmt.Errorf("migrate: scan %s: %v: %w", root, err, apperr.ErrPreflight)
	}

	moves, inPlace, invalid := p.counts()
	log.Info("scan complete",
		slog.Int("files", len(p.entries)),
		slog.Int("moves", moves),
		slog.Int("in_place", inPlace),
		slog.Int("invalid", invalid),
		slog.Int("resumed", p.resumed))
	return p, nil
}

func (o *Orchestrator) planFile(path, rel, destRoot string, learned map[string]string) entry {
	e := entry{rel: rel, path: models.KnowledgePath{Source: filepath.Clean(path)}}

	info, err := os.Stat(path)
	if err != nil {
		e.err = fmt.Errorf("stat: %v: %w", err, apperr.ErrTransientIO)
		return e
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.err = fmt.Errorf("read: %v: %w", err, apperr.ErrTransientIO)
		return e
	}
	res, err := parser.Parse(data)
	if err != nil {
		e.err = err
		return e
	}
	rec := res.Record
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = info.ModTime().UTC()
	}
	if err := rec.Validate(); err != nil {
		e.err = fmt.Errorf("record: %v: %w", err, apperr.ErrValidation)
		return e
	}

	realName, known := o.names.Get(rec.AuthorUsername)
	if !known {
		realName, known = learned[rec.AuthorUsername]
	}
	if !known && rec.AuthorName != "" {
		realName = rec.AuthorName
	}

	dst, comps, err := o.generator.Destination(destRoot, rec, realName)
	if err != nil {
		e.err = err
		return e
	}
	e.path.Destination = filepath.Clean(dst)
	e.path.Components = comps

	if !known && rec.AuthorName != "" && rec.AuthorUsername != "" {
		learned[rec.AuthorUsername] = rec.AuthorName
	}
	return e
}

// rememberNames caches the real names a plan discovered.
func (o *Orchestrator) rememberNames(p *plan) {
	if len(p.learned) == 0 {
		return
	}
	if err := o.names.Merge(p.learned); err != nil {
		o.phase(checkpoint.PhaseScan).Warn("could not cache real names",
			slog.Int("names", len(p.learned)), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) printPlan(p *plan) {
	moves, inPlace, invalid := p.counts()
	fmt.Fprintf(o.out, "Migration plan for %s\n", p.root)
	fmt.Fprintf(o.out, "  files scanned:    %d\n", len(p.entries)+p.resumed)
	fmt.Fprintf(o.out, "  to move:          %d\n", moves)
	fmt.Fprintf(o.out, "  already in place: %d\n", inPlace)
	fmt.Fprintf(o.out, "  invalid:          %d\n", invalid)
	if p.resumed > 0 {
		fmt.Fprintf(o.out, "  done (resumed):   %d\n", p.resumed)
	}

	shown := 0
	for _, e := range p.entries {
		if e.err != nil || e.path.InPlace() {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(o.out, "Sample destination: %s\n", e.path.Destination)
		}
		if shown == planPreview {
			fmt.Fprintf(o.out, "  ... and %d more\n", moves-shown)
			break
		}
		fmt.Fprintf(o.out, "  move %s -> %s\n", e.rel, e.path.Destination)
		shown++
	}
	for _, e := range p.entries {
		if e.err != nil {
			fmt.Fprintf(o.out, "  invalid %s: %v\n", e.rel, e.err)
		}
	}
}

func trimAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
