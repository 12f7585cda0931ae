package preflight

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/relayout/internal/apperr"
)

const mb = 1 << 20

func testChecker(space SpaceFunc, policy Policy) *Checker {
	return &Checker{
		Multiplier: DefaultMultiplier,
		Policy:     policy,
		Space:      space,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func fixedSpace(n uint64) SpaceFunc {
	return func(string) (uint64, error) { return n, nil }
}

func TestCheckDiskSpace_Insufficient(t *testing.T) {
	c := testChecker(fixedSpace(250*mb), FailOpen)
	_, err := c.CheckDiskSpace(t.TempDir(), 100*mb)
	if !errors.Is(err, apperr.ErrPreflight) {
		t.Fatalf("err = %v, want ErrPreflight", err)
	}
	if !strings.Contains(err.Error(), "GB") {
		t.Errorf("error should format sizes in GB: %v", err)
	}
}

func TestCheckDiskSpace_Sufficient(t *testing.T) {
	c := testChecker(fixedSpace(300*mb), FailOpen)
	avail, err := c.CheckDiskSpace(t.TempDir(), 100*mb)
	if err != nil {
		t.Fatalf("CheckDiskSpace: %v", err)
	}
	if avail != 300*mb {
		t.Errorf("available = %d", avail)
	}
}

func TestCheckDiskSpace_UnsupportedFailOpen(t *testing.T) {
	unsupported := func(string) (uint64, error) { return 0, ErrUnsupported }
	c := testChecker(unsupported, FailOpen)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := c.Run(dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Sufficient || res.AvailableSpace != -1 {
		t.Errorf("result = %+v", res)
	}
}

func TestCheckDiskSpace_UnsupportedFailClosed(t *testing.T) {
	unsupported := func(string) (uint64, error) { return 0, ErrUnsupported }
	c := testChecker(unsupported, FailClosed)
	if _, err := c.CheckDiskSpace(t.TempDir(), 1); !errors.Is(err, apperr.ErrPreflight) {
		t.Errorf("err = %v, want ErrPreflight", err)
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]int{"a.md": 10, "sub/b.md": 20, "sub/deeper/c.txt": 5}
	for rel, n := range files {
		p := filepath.Join(dir, rel)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, make([]byte, n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := testChecker(fixedSpace(1<<40), FailOpen)
	size, count, err := c.ScanDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if size != 35 || count != 3 {
		t.Errorf("size, count = %d, %d; want 35, 3", size, count)
	}
}

func TestScanDirectory_MissingRoot(t *testing.T) {
	c := testChecker(fixedSpace(1<<40), FailOpen)
	_, _, err := c.ScanDirectory(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, apperr.ErrPreflight) {
		t.Errorf("err = %v, want ErrPreflight", err)
	}
}

func TestRun_Result(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.md"), make([]byte, 100), 0o644)
	c := testChecker(fixedSpace(1000), FailOpen)
	res, err := c.Run(dir)
	if err != nil {
		t.Fatal(err)
	}
	if res.DirectorySize != 100 || res.FileCount != 1 || res.AvailableSpace != 1000 || !res.Sufficient {
		t.Errorf("result = %+v", res)
	}
}

func TestPlatformSpaceQuery(t *testing.T) {
	avail, err := availableSpace(t.TempDir())
	if errors.Is(err, ErrUnsupported) {
		t.Skip("no space query on this platform")
	}
	if err != nil {
		t.Fatalf("availableSpace: %v", err)
	}
	if avail == 0 {
		t.Error("expected non-zero available space")
	}
}
