package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/relayout/internal/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func sampleTree(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	src := filepath.Join(base, "knowledge")
	writeTree(t, src, map[string]string{
		"a.md":            "alpha",
		"tools/b.md":      "bravo",
		"tools/deep/c.md": "charlie",
	})
	return src, filepath.Join(base, "knowledge_backup")
}

func TestCreateAndVerify_Identical(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)

	m, err := Create(ctx, src, dst, discardLogger())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(m.Files) != 3 {
		t.Errorf("manifest has %d files, want 3", len(m.Files))
	}

	res, err := Verify(ctx, src, dst)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid() || res.Matched != 3 || res.Mismatched != 0 || res.MissingInBackup != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Err() != nil {
		t.Errorf("Err = %v", res.Err())
	}
}

func TestVerify_AlteredByte(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)
	if _, err := Create(ctx, src, dst, discardLogger()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "tools", "b.md"), []byte("bravO"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Verify(ctx, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mismatched != 1 || len(res.Mismatches) != 1 {
		t.Fatalf("result = %+v", res)
	}
	mm := res.Mismatches[0]
	if mm.Path != "tools/b.md" || mm.BackupHash == nil || *mm.BackupHash == mm.OriginalHash {
		t.Errorf("mismatch = %+v", mm)
	}
	if !errors.Is(res.Err(), apperr.ErrIntegrity) {
		t.Errorf("Err = %v, want ErrIntegrity", res.Err())
	}
}

func TestVerify_DeletedBackupFile(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)
	if _, err := Create(ctx, src, dst, discardLogger()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dst, "a.md")); err != nil {
		t.Fatal(err)
	}

	res, err := Verify(ctx, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if res.MissingInBackup != 1 || res.Mismatched != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Mismatches[0].Path != "a.md" || res.Mismatches[0].BackupHash != nil {
		t.Errorf("mismatch = %+v", res.Mismatches[0])
	}
	if res.Valid() {
		t.Error("backup with a missing file must be invalid")
	}
}

func TestVerify_ExtraBackupFile(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)
	if _, err := Create(ctx, src, dst, discardLogger()); err != nil {
		t.Fatal(err)
	}
	writeTree(t, dst, map[string]string{"stray.md": "extra"})

	res, err := Verify(ctx, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mismatched != 0 || res.MissingInBackup != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Valid() {
		t.Error("file count mismatch must invalidate the backup")
	}
}

func TestCreate_RefusesExistingDestination(t *testing.T) {
	src, dst := sampleTree(t)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Create(context.Background(), src, dst, discardLogger())
	if !errors.Is(err, apperr.ErrPreflight) {
		t.Errorf("err = %v, want ErrPreflight", err)
	}
}

func TestVerifyManifest(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)
	if _, err := Create(ctx, src, dst, discardLogger()); err != nil {
		t.Fatal(err)
	}

	res, err := VerifyManifest(ctx, dst)
	if err != nil {
		t.Fatalf("VerifyManifest: %v", err)
	}
	if !res.Valid() || res.Matched != 3 {
		t.Fatalf("result = %+v", res)
	}

	// Corrupt one file after the fact.
	_ = os.WriteFile(filepath.Join(dst, "tools", "deep", "c.md"), []byte("CHARLIE"), 0o644)
	res, err = VerifyManifest(ctx, dst)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid() || res.Mismatched != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestVerifyManifest_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.md": "x"})
	_, err := VerifyManifest(context.Background(), dir)
	if !errors.Is(err, apperr.ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestVerifyManifest_MissingDir(t *testing.T) {
	_, err := VerifyManifest(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, apperr.ErrPreflight) {
		t.Errorf("err = %v, want ErrPreflight", err)
	}
}

func TestCopyTree_SkipsManifest(t *testing.T) {
	ctx := context.Background()
	src, dst := sampleTree(t)
	if _, err := Create(ctx, src, dst, discardLogger()); err != nil {
		t.Fatal(err)
	}
	restored := filepath.Join(t.TempDir(), "restored")
	sums, err := CopyTree(ctx, dst, restored)
	if err != nil {
		t.Fatalf("CopyTree: %v", err)
	}
	if len(sums) != 3 {
		t.Errorf("copied %d files, want 3", len(sums))
	}
	if _, err := os.Stat(filepath.Join(restored, ManifestName)); !os.IsNotExist(err) {
		t.Error("manifest should not be copied")
	}
}
