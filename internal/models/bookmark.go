// Package models defines the domain types shared across the migration engine.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// LinkedContent is an external resource attached to a bookmark.
type LinkedContent struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Bookmark is the categorized content record produced upstream. Only the
// fields needed to compute a destination path are carried.
type Bookmark struct {
	ID             string          `json:"id"`
	AuthorUsername string          `json:"authorUsername"`
	AuthorName     string          `json:"authorName,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Category       string          `json:"category"`
	LinkedContent  []LinkedContent `json:"linkedContent,omitempty"`
	Text           string          `json:"text"`
}

// Validate checks the fields a destination path is computed from. Character
// level checks are left to the sanitizer.
func (b *Bookmark) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ID, validation.Length(0, 128)),
		validation.Field(&b.AuthorUsername, validation.Length(0, 64)),
		validation.Field(&b.CreatedAt, validation.Required),
		validation.Field(&b.Category, validation.Length(0, 200)),
	)
}

// FilenameComponents are the decomposed parts of an enhanced filename.
type FilenameComponents struct {
	Date     string `json:"date"`
	Handle   string `json:"handle"`
	Category string `json:"category"`
	Title    string `json:"title"`
	ShortID  string `json:"shortId"`
}

// KnowledgePath pairs a source file with its computed destination.
// Destination is only populated after sanitization and length validation.
type KnowledgePath struct {
	Source      string             `json:"source"`
	Destination string             `json:"destination"`
	Components  FilenameComponents `json:"components"`
}

// InPlace reports whether the file already sits at its destination.
func (k KnowledgePath) InPlace() bool {
	return k.Source == k.Destination
}
