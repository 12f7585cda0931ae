package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "relayout")
	var s sample
	if err := Load(write(t, "name: ${SAMPLE_NAME}\ncount: 2\n"), &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "relayout" || s.Count != 2 {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_Validates(t *testing.T) {
	var s sample
	err := Load(write(t, "count: -1\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	s := sample{Name: "default"}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("defaults lost: %+v", s)
	}
	if err := LoadOptional("", &s); err != nil {
		t.Fatalf("empty path: %v", err)
	}

	bad := sample{Count: -5}
	if err := LoadOptional("", &bad); err == nil {
		t.Error("defaults must still be validated")
	}
}
