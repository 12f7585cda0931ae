package livewriter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/relayout/internal/apperr"
	"github.com/starford/relayout/internal/degraded"
	"github.com/starford/relayout/internal/lock"
	"github.com/starford/relayout/internal/storage"
)

type fixture struct {
	guard    *Guard
	state    *storage.FS
	stateDir string
	primary  string
	fallback string
	out      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	state, err := storage.NewFS(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		state:    state,
		stateDir: stateDir,
		primary:  filepath.Join(base, "knowledge"),
		fallback: filepath.Join(base, "knowledge_degraded"),
		out:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.guard = New(state, stateDir, f.primary, f.fallback, f.out, logger)
	return f
}

func TestPrepare_Unlocked(t *testing.T) {
	f := newFixture(t)
	dir, err := f.guard.Prepare()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if dir != f.primary {
		t.Errorf("dir = %q, want %q", dir, f.primary)
	}
	if f.out.Len() != 0 {
		t.Errorf("unexpected output %q", f.out.String())
	}
}

func TestPrepare_LockedRefuses(t *testing.T) {
	f := newFixture(t)
	if err := lock.New(f.state).Acquire("mig-1"); err != nil {
		t.Fatal(err)
	}

	_, err := f.guard.WriteNote("new.md", []byte("hello"))
	if !errors.Is(err, apperr.ErrConcurrency) {
		t.Fatalf("err = %v, want ErrConcurrency", err)
	}
	if !strings.Contains(f.out.String(), "mig-1") {
		t.Errorf("warning should name the migration: %q", f.out.String())
	}
	if _, err := os.Stat(filepath.Join(f.primary, "new.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("nothing may be written while locked")
	}
}

func TestWriteNote_DegradedUsesFallback(t *testing.T) {
	f := newFixture(t)
	if err := degraded.New(f.state, f.primary, f.fallback).MarkFailed(errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	dir, err := f.guard.WriteNote("2026/a.md", []byte("hello"))
	if err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	if dir != f.fallback {
		t.Errorf("dir = %q, want fallback", dir)
	}
	data, err := os.ReadFile(filepath.Join(f.fallback, "2026", "a.md"))
	if err != nil || string(data) != "hello" {
		t.Errorf("fallback content = %q, %v", data, err)
	}
}

func TestWait_ReturnsWhenLockCleared(t *testing.T) {
	f := newFixture(t)
	l := lock.New(f.state)
	if err := l.Acquire("mig-2"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.guard.Wait(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := l.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
