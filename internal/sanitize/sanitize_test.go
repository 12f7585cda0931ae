package sanitize

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/starford/relayout/internal/apperr"
)

func TestAuthorName_HandleOnly(t *testing.T) {
	for _, h := range []string{"doodlestein", "a", "User_123", "X9"} {
		got, err := AuthorName(h, "")
		if err != nil {
			t.Fatalf("AuthorName(%q): %v", h, err)
		}
		if got != "@"+h {
			t.Errorf("AuthorName(%q) = %q, want %q", h, got, "@"+h)
		}
	}
}

func TestAuthorName_StripsLeadingAt(t *testing.T) {
	got, err := AuthorName("@doodlestein", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "@doodlestein" {
		t.Errorf("got %q", got)
	}
}

func TestAuthorName_RejectsInvalidHandles(t *testing.T) {
	cases := []string{"", "has space", "dots.here", "../etc", "\u00fcn\u00efcode", "\u0430dmin"}
	for _, h := range cases {
		_, err := AuthorName(h, "")
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("AuthorName(%q) err = %v, want validation error", h, err)
		}
	}
}

func TestAuthorName_RejectsReservedNames(t *testing.T) {
	cases := []string{"CON", "con", "Prn", "aux", "NUL", "com1", "COM9", "Lpt9", "lpt1"}
	for _, h := range cases {
		if _, err := AuthorName(h, ""); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("AuthorName(%q) should be rejected, err = %v", h, err)
		}
	}
	// Near misses are fine.
	for _, h := range []string{"COM10", "CONSOLE", "LPT0"} {
		if _, err := AuthorName(h, ""); err != nil {
			t.Errorf("AuthorName(%q) unexpected error: %v", h, err)
		}
	}
}

func TestAuthorName_WithRealName(t *testing.T) {
	got, err := AuthorName("jdoe", "  Jane   Doe. ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "@jdoe (Jane Doe)" {
		t.Errorf("got %q", got)
	}
}

func TestAuthorName_RealNameKeepsUnicode(t *testing.T) {
	// Decomposed e + combining acute must come out NFC-composed.
	got, err := AuthorName("rene", "Rene\u0301 Magritte")
	if err != nil {
		t.Fatal(err)
	}
	if got != "@rene (Ren\u00e9 Magritte)" {
		t.Errorf("got %q", got)
	}
}

func TestAuthorName_RealNameFallsBackToHandle(t *testing.T) {
	for _, name := range []string{"...", "<>|", "\x00\x1f", " . . "} {
		got, err := AuthorName("jdoe", name)
		if err != nil {
			t.Fatal(err)
		}
		if got != "@jdoe" {
			t.Errorf("AuthorName(jdoe, %q) = %q, want @jdoe", name, got)
		}
	}
}

func TestAuthorName_RealNameBounded(t *testing.T) {
	long := strings.Repeat("ab<c>:d\"|?*/\\ ", 40)
	got, err := AuthorName("jdoe", long)
	if err != nil {
		t.Fatal(err)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(got, "@jdoe ("), ")")
	if n := len([]rune(inner)); n > MaxRealNameLength {
		t.Errorf("real name length %d > %d", n, MaxRealNameLength)
	}
	if strings.ContainsAny(inner, forbiddenNameChars) {
		t.Errorf("real name contains forbidden characters: %q", inner)
	}
	if strings.HasSuffix(inner, " ") || strings.HasSuffix(inner, ".") {
		t.Errorf("real name not re-trimmed after truncation: %q", inner)
	}
}

func TestRealName_CollapsesUnicodeSpaces(t *testing.T) {
	got := RealName("Jeffrey\u00a0\u00a0Emanuel\u2028Jr\u3000")
	if got != "Jeffrey Emanuel Jr" {
		t.Errorf("RealName = %q", got)
	}
}

func TestPreview_CutsOnRuneBoundary(t *testing.T) {
	got := preview(strings.Repeat("é", 60))
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 50) + "..."; got != want {
		t.Errorf("preview = %q, want %q", got, want)
	}
	if got := preview("short"); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
}

func TestSlug_RejectsTraversal(t *testing.T) {
	cases := []string{"../etc/passwd", `..\windows\system32`, "ok/../../x", "A..\\B"}
	for _, in := range cases {
		if _, err := Slug(in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Slug(%q) err = %v, want validation error", in, err)
		}
	}
}

func TestSlug_Transforms(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Meta Skill Repository", "meta-skill-repository"},
		{"  --Hello,   World!!--  ", "hello-world"},
		{"tab\there\nnewline", "tabherenewline"},
		{"\u00dcn\u00efc\u00f6d\u00e9", "n-c-d"},
		{"...", ""},
		{"v1.2 release", "v1-2-release"},
	}
	for _, c := range cases {
		got, err := Slug(c.in)
		if err != nil {
			t.Fatalf("Slug(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlug_Truncates(t *testing.T) {
	got, err := Slug(strings.Repeat("abcd ", 40))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > MaxSlugLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxSlugLength)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("slug ends with hyphen: %q", got)
	}
}
