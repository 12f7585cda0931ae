// Package parser reads archived Markdown notes and recovers the bookmark
// record each was rendered from.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// timeLayouts are tried in order for created_at.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RubyDate, // "Mon Jan 02 15:04:05 -0700 2006", as exported by X/Twitter
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// frontmatter is the subset of keys the archive writer emits.
type frontmatter struct {
	ID             string                 `yaml:"id"`
	Author         string                 `yaml:"author"`
	AuthorUsername string                 `yaml:"author_username"`
	AuthorName     string                 `yaml:"author_name"`
	CreatedAt      string                 `yaml:"created_at"`
	Category       string                 `yaml:"category"`
	Title          string                 `yaml:"title"`
	Tags           []string               `yaml:"tags"`
	LinkedContent  []models.LinkedContent `yaml:"linked_content"`
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Record models.Bookmark
	Body   string
	Tags   []string
	Title  string
	// HasFrontmatter is false when the file had no valid YAML header.
	HasFrontmatter bool
}

// Parse splits data into frontmatter and body and builds the record. A
// missing or invalid header is not an error; the record is then derived from
// the body alone. An unparseable created_at is a validation error.
func Parse(data []byte) (*Result, error) {
	block, body := splitFrontmatter(data)

	var fm frontmatter
	hasFM := false
	if block != nil {
		if err := yaml.Unmarshal(block, &fm); err == nil {
			hasFM = true
		} else {
			body = string(data)
		}
	}

	rec := models.Bookmark{
		ID:             strings.TrimSpace(fm.ID),
		AuthorUsername: firstNonEmpty(fm.AuthorUsername, fm.Author),
		AuthorName:     strings.TrimSpace(fm.AuthorName),
		Category:       strings.TrimSpace(fm.Category),
		LinkedContent:  fm.LinkedContent,
		Text:           body,
	}
	if fm.Title != "" && len(fm.LinkedContent) == 0 {
		rec.Text = fm.Title + "\n" + body
	}
	if fm.CreatedAt != "" {
		ts, err := parseTime(fm.CreatedAt)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = ts
	}

	return &Result{
		Record:         rec,
		Body:           body,
		Tags:           extractTags(body, fm.Tags),
		Title:          deriveTitle(fm, body),
		HasFrontmatter: hasFM,
	}, nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the body. Without a closed block the whole input is body.
func splitFrontmatter(data []byte) ([]byte, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	afterDelim := rest[idx+1+len(delim):]
	return rest[:idx], strings.TrimLeft(string(afterDelim), "\n\r")
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parser: unrecognized created_at %q: %w", s, apperr.ErrValidation)
}

// extractTags merges frontmatter tags with inline #tags, first seen wins.
func extractTags(body string, fmTags []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, t := range fmTags {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle prefers the first linked title, then the frontmatter title,
// then the first H1 heading.
func deriveTitle(fm frontmatter, body string) string {
	if len(fm.LinkedContent) > 0 && fm.LinkedContent[0].Title != "" {
		return fm.LinkedContent[0].Title
	}
	if fm.Title != "" {
		return fm.Title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
