package internal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_LineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "migration.log")
	var mirror bytes.Buffer

	logger, closer, err := newLogger(path, slog.LevelDebug, &mirror)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.With(slog.String("phase", "backup")).Info("backup verified")
	logger.Debug("details")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"timestamp", "level", "phase", "message"} {
		if _, ok := rec[key]; !ok {
			t.Errorf("missing key %q in %s", key, lines[0])
		}
	}
	if rec["message"] != "backup verified" || rec["phase"] != "backup" {
		t.Errorf("record = %v", rec)
	}
	if !bytes.Equal(mirror.Bytes(), data) {
		t.Error("mirror should receive the same records")
	}
}

func TestNewLogger_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migration.log")
	for i := 0; i < 2; i++ {
		logger, closer, err := newLogger(path, slog.LevelInfo, nil)
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("run")
		closer.Close()
	}
	data, _ := os.ReadFile(path)
	if n := bytes.Count(data, []byte("\n")); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}
