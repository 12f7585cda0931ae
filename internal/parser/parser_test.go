package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/starford/relayout/internal/apperr"
)

func TestParse_Record(t *testing.T) {
	input := []byte(`---
id: "12345678901234567890abcdef"
author: "@doodlestein"
author_name: Jeffrey Emanuel
created_at: 2026-01-20T12:00:00.000Z
category: tools
linked_content:
  - title: Meta Skill Repository
    url: https://example.com/repo
tags: [skills]
---
Check out this repo #agents
`)
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec := r.Record
	if rec.ID != "12345678901234567890abcdef" || rec.AuthorUsername != "@doodlestein" || rec.Category != "tools" {
		t.Errorf("record = %+v", rec)
	}
	if rec.AuthorName != "Jeffrey Emanuel" {
		t.Errorf("AuthorName = %q", rec.AuthorName)
	}
	if !rec.CreatedAt.Equal(time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if len(rec.LinkedContent) != 1 || rec.LinkedContent[0].Title != "Meta Skill Repository" {
		t.Errorf("LinkedContent = %+v", rec.LinkedContent)
	}
	if r.Title != "Meta Skill Repository" {
		t.Errorf("Title = %q", r.Title)
	}
	if len(r.Tags) != 2 || r.Tags[0] != "skills" || r.Tags[1] != "agents" {
		t.Errorf("Tags = %v", r.Tags)
	}
	if !r.HasFrontmatter {
		t.Error("HasFrontmatter = false")
	}
}

func TestParse_NumericIDAndAuthorUsername(t *testing.T) {
	input := []byte("---\nid: 1881234567890123456\nauthor_username: jdoe\nauthor: ignored\n---\nbody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	if r.Record.ID != "1881234567890123456" {
		t.Errorf("ID = %q", r.Record.ID)
	}
	if r.Record.AuthorUsername != "jdoe" {
		t.Errorf("AuthorUsername = %q", r.Record.AuthorUsername)
	}
}

func TestParse_TitleFeedsText(t *testing.T) {
	input := []byte("---\ntitle: A Thread About Go\n---\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatal(err)
	}
	if r.Record.Text != "A Thread About Go\nBody text.\n" {
		t.Errorf("Text = %q", r.Record.Text)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasFrontmatter {
		t.Error("expected no frontmatter")
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
	if !r.Record.CreatedAt.IsZero() {
		t.Error("CreatedAt should be left for the caller to fill")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasFrontmatter {
		t.Errorf("expected no frontmatter on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_TimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2026-01-20T12:00:00Z":           time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC),
		"Tue Jan 20 12:00:00 +0000 2026": time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC),
		"2026-01-20":                     time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := parseTime(in)
		if err != nil {
			t.Errorf("parseTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParse_BadTimestamp(t *testing.T) {
	input := []byte("---\ncreated_at: last tuesday\n---\nbody\n")
	if _, err := Parse(input); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestExtractTags_Dedup(t *testing.T) {
	tags := extractTags("Some text #beta and #alpha again.", []string{"alpha", " "})
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}
