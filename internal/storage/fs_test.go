package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/relayout/internal/apperr"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

// providers returns every Provider implementation under test.
func providers(t *testing.T) map[string]Provider {
	t.Helper()
	return map[string]Provider{
		"fs":     tempStore(t),
		"memory": NewMemory(),
	}
}

func TestWriteAndRead(t *testing.T) {
	for name, s := range providers(t) {
		t.Run(name, func(t *testing.T) {
			content := []byte(`{"ok":true}`)
			if err := s.Write(".marker", content); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := s.Read(".marker")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(got) != string(content) {
				t.Errorf("content mismatch: got %q", got)
			}
		})
	}
}

func TestReadMissing(t *testing.T) {
	for name, s := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read("absent")
			if !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("err = %v, want fs.ErrNotExist", err)
			}
		})
	}
}

func TestCreateIsExclusive(t *testing.T) {
	for name, s := range providers(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Create(".lock", []byte("first")); err != nil {
				t.Fatalf("first Create: %v", err)
			}
			err := s.Create(".lock", []byte("second"))
			if !errors.Is(err, apperr.ErrAlreadyExists) {
				t.Fatalf("second Create err = %v, want ErrAlreadyExists", err)
			}
			got, _ := s.Read(".lock")
			if string(got) != "first" {
				t.Errorf("losing Create overwrote content: %q", got)
			}
			if err := s.Delete(".lock"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Create(".lock", []byte("third")); err != nil {
				t.Errorf("Create after Delete: %v", err)
			}
		})
	}
}

func TestDeleteAndExists(t *testing.T) {
	for name, s := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Write("del", []byte("bye"))
			ok, err := s.Exists("del")
			if err != nil || !ok {
				t.Fatalf("Exists = %v, %v", ok, err)
			}
			if err := s.Delete("del"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if ok, _ := s.Exists("del"); ok {
				t.Error("file still exists after Delete")
			}
			if err := s.Delete("del"); err != nil {
				t.Errorf("Delete of missing file: %v", err)
			}
		})
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if err := s.Create(p, []byte("x")); err == nil {
			t.Errorf("expected error for create of %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempStore(t)
	_ = s.Write(".state.json", []byte("original content"))
	if err := s.Write(".state.json", []byte("updated content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = s.Create(".lock", []byte("x"))
	_ = s.Create(".lock", []byte("y"))

	got, _ := s.Read(".state.json")
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".relayout-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "relayout-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
