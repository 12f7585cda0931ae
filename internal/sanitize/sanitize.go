// Package sanitize turns untrusted handles, real names and titles into
// filesystem-safe path fragments.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/relayout/internal/apperr"
)

const (
	// MaxRealNameLength is the rune limit for the parenthetical real name.
	MaxRealNameLength = 100
	// MaxSlugLength is the character limit for a slug.
	MaxSlugLength = 80
)

var (
	// Handles are ASCII-only so Unicode lookalikes cannot slip past the
	// reserved-name check or collide with another author's folder.
	handleRe  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	slugRunRe = regexp.MustCompile(`[^a-z0-9]+`)
)

var reservedNames = func() map[string]struct{} {
	m := map[string]struct{}{"CON": {}, "PRN": {}, "AUX": {}, "NUL": {}}
	for i := 1; i <= 9; i++ {
		m[fmt.Sprintf("COM%d", i)] = struct{}{}
		m[fmt.Sprintf("LPT%d", i)] = struct{}{}
	}
	return m
}()

const forbiddenNameChars = `<>:"|?*/\`

// Handle validates a user handle and returns it without the leading "@".
func Handle(handle string) (string, error) {
	h := strings.TrimPrefix(handle, "@")
	if !handleRe.MatchString(h) {
		return "", fmt.Errorf("sanitize: invalid handle %q: %w", handle, apperr.ErrValidation)
	}
	if _, ok := reservedNames[strings.ToUpper(h)]; ok {
		return "", fmt.Errorf("sanitize: reserved name %q: %w", h, apperr.ErrValidation)
	}
	return h, nil
}

// AuthorName renders an author folder name: "@handle" or
// "@handle (Real Name)". An empty or fully-stripped real name falls back to
// the handle-only form.
func AuthorName(handle, realName string) (string, error) {
	h, err := Handle(handle)
	if err != nil {
		return "", err
	}
	name := RealName(realName)
	if name == "" {
		return "@" + h, nil
	}
	return fmt.Sprintf("@%s (%s)", h, name), nil
}

// RealName cleans a display name. Unicode letters survive; control
// characters, path-hostile punctuation and edge dots/spaces do not.
func RealName(s string) string {
	if s == "" {
		return ""
	}
	s = stripControl(s)
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenNameChars, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = trimDotsAndSpaces(s)
	if utf8.RuneCountInString(s) > MaxRealNameLength {
		s = string([]rune(s)[:MaxRealNameLength])
		s = trimDotsAndSpaces(s)
	}
	return s
}

// Slug converts free text into a lowercase hyphenated fragment.
//
// Traversal sequences are rejected on the raw input, before any transform
// that could hide them.
func Slug(text string) (string, error) {
	if strings.Contains(text, "../") || strings.Contains(text, `..\`) {
		return "", fmt.Errorf("sanitize: path traversal in %q: %w", preview(text), apperr.ErrValidation)
	}
	s := strings.ToLower(text)
	s = stripControl(s)
	s = norm.NFC.String(s)
	s = slugRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	return s, nil
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1F || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

func trimDotsAndSpaces(s string) string {
	return strings.Trim(s, ". ")
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= 50 {
		return s
	}
	return string(runes[:50]) + "..."
}
