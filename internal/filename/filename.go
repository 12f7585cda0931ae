// Package filename builds enhanced filenames and destination paths for
// bookmark records:
//
//	<root>/<YYYY>/<MM>-<mon>/<category>/<@handle (Real Name)>/<date>-<@handle>-<category>-<title>-<shortId>.md
package filename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/models"
	"github.com/starford/relayout/internal/sanitize"
)

// Defaults.
const (
	MaxNameLength   = 252 // enhanced filename without ".md"
	MaxPathLength   = 240 // full destination path
	DefaultCategory = "general"
	Unknown         = "unknown"
	untitled        = "untitled"
	shortIDLength   = 6
	extension       = ".md"
	previewLength   = 50
)

var shortIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Generator holds the length limits.
type Generator struct {
	MaxNameLength int
	MaxPathLength int
}

// New returns a Generator with the default limits.
func New() *Generator {
	return &Generator{MaxNameLength: MaxNameLength, MaxPathLength: MaxPathLength}
}

// Components decomposes b into sanitized filename parts.
func Components(b models.Bookmark) (models.FilenameComponents, error) {
	var c models.FilenameComponents

	if b.CreatedAt.IsZero() {
		return c, fmt.Errorf("filename: record %q has no creation time: %w", b.ID, apperr.ErrValidation)
	}
	c.Date = b.CreatedAt.UTC().Format("2006-01-02")

	c.Handle = Unknown
	if b.AuthorUsername != "" {
		h, err := sanitize.Handle(b.AuthorUsername)
		if err != nil {
			return c, err
		}
		c.Handle = "@" + h
	}

	c.Category = DefaultCategory
	if b.Category != "" {
		cat, err := sanitize.Slug(b.Category)
		if err != nil {
			return c, err
		}
		if cat != "" {
			c.Category = cat
		}
	}

	title, err := titleOf(b)
	if err != nil {
		return c, err
	}
	c.Title = title

	c.ShortID = Unknown
	if b.ID != "" {
		id := b.ID
		if len(id) > shortIDLength {
			id = id[len(id)-shortIDLength:]
		}
		if !shortIDRe.MatchString(id) {
			return c, fmt.Errorf("filename: invalid record id %q: %w", b.ID, apperr.ErrValidation)
		}
		c.ShortID = id
	}
	return c, nil
}

func titleOf(b models.Bookmark) (string, error) {
	if len(b.LinkedContent) > 0 && strings.TrimSpace(b.LinkedContent[0].Title) != "" {
		s, err := sanitize.Slug(b.LinkedContent[0].Title)
		if err != nil {
			return "", err
		}
		if s != "" {
			return s, nil
		}
	}
	first, _, _ := strings.Cut(strings.TrimSpace(b.Text), "\n")
	s, err := sanitize.Slug(first)
	if err != nil {
		return "", err
	}
	if s == "" {
		return untitled, nil
	}
	return s, nil
}

// Generate returns the enhanced filename for b. Only the title segment is
// shortened to respect MaxNameLength.
func (g *Generator) Generate(b models.Bookmark) (string, models.FilenameComponents, error) {
	c, err := Components(b)
	if err != nil {
		return "", c, err
	}
	prefix := fmt.Sprintf("%s-%s-%s-", c.Date, c.Handle, c.Category)
	suffix := "-" + c.ShortID

	if len(prefix)+len(c.Title)+len(suffix) > g.MaxNameLength {
		room := g.MaxNameLength - len(prefix) - len(suffix)
		if room < 1 {
			return "", c, fmt.Errorf("filename: prefix %q leaves no room for a title: %w", prefix, apperr.ErrValidation)
		}
		c.Title = strings.TrimRight(c.Title[:room], "-")
	}
	return prefix + c.Title + suffix + extension, c, nil
}

// Destination computes the full destination path of b under root. The
// returned path has passed sanitization and ValidatePathLength.
func (g *Generator) Destination(root string, b models.Bookmark, realName string) (string, models.FilenameComponents, error) {
	name, c, err := g.Generate(b)
	if err != nil {
		return "", c, err
	}

	author := Unknown
	if b.AuthorUsername != "" {
		author, err = sanitize.AuthorName(b.AuthorUsername, realName)
		if err != nil {
			return "", c, err
		}
	}

	t := b.CreatedAt.UTC()
	month := fmt.Sprintf("%02d-%s", int(t.Month()), strings.ToLower(t.Month().String()[:3]))
	dst := filepath.Join(root, fmt.Sprintf("%04d", t.Year()), month, c.Category, author, name)

	if err := g.ValidatePathLength(dst); err != nil {
		return "", c, err
	}
	return dst, c, nil
}

// ValidatePathLength fails when path is longer than the configured limit.
func (g *Generator) ValidatePathLength(path string) error {
	return ValidatePathLength(path, g.MaxPathLength)
}

// ValidatePathLength fails when path has more than limit characters. The
// error quotes the path, shortened to 50 characters plus "..." when longer.
func ValidatePathLength(path string, limit int) error {
	n := utf8.RuneCountInString(path)
	if n <= limit {
		return nil
	}
	shown := path
	if n > previewLength {
		shown = string([]rune(path)[:previewLength]) + "..."
	}
	return fmt.Errorf("filename: path too long (%d > %d characters): %s: %w", n, limit, shown, apperr.ErrValidation)
}
