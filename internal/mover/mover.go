// Package mover moves single files with copy → verify → delete semantics
// under a deadline. The source is removed only after the destination exists
// with the same size.
package mover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/relayout/internal/apperr"
)

// DefaultTimeout bounds one move.
const DefaultTimeout = 5 * time.Second

var (
	// inflight tracks move goroutines, including abandoned ones still cleaning up.
	inflight sync.WaitGroup
	// stepHook, when set, runs before each step of a move.
	stepHook func(step string)
)

// Drain waits until every abandoned move has finished cleaning up.
func Drain() {
	inflight.Wait()
}

// MoveWithTimeout moves src to dst, giving up after timeout. A timed-out
// move is reported as apperr.ErrTransientIO; src is never deleted unless dst
// has been verified, and a move abandoned mid-way cleans up after itself.
func MoveWithTimeout(ctx context.Context, src, dst string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		done <- move(ctx, src, dst)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("mover: %s abandoned after %s: %w: %w", src, timeout, ctx.Err(), apperr.ErrTransientIO)
	}
}

func move(ctx context.Context, src, dst string) error {
	step(ctx, "stat")
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("mover: stat source: %v: %w", err, apperr.ErrTransientIO)
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("mover: %s is not a regular file: %w", src, apperr.ErrValidation)
	}
	if dstInfo, err := os.Lstat(dst); err == nil {
		return finishInterrupted(src, dst, srcInfo, dstInfo)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("mover: stat destination: %v: %w", err, apperr.ErrTransientIO)
	}

	step(ctx, "mkdir")
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mover: mkdir: %v: %w", err, apperr.ErrTransientIO)
	}

	step(ctx, "copy")
	tmpName, err := copyToTemp(ctx, src, dir, srcInfo)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)

	// Link fails if dst appeared meanwhile, so an existing file is never replaced.
	if err := os.Link(tmpName, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("mover: destination %s: %w", dst, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("mover: link: %v: %w", err, apperr.ErrTransientIO)
	}

	step(ctx, "verify")
	dstInfo, err := os.Stat(dst)
	if err != nil || dstInfo.Size() != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("mover: size check failed for %s: %w", dst, apperr.ErrTransientIO)
	}

	step(ctx, "delete")
	if err := ctx.Err(); err != nil {
		// Out of time before the source was touched: undo, src stays authoritative.
		_ = os.Remove(dst)
		return fmt.Errorf("mover: %s: %w: %w", src, err, apperr.ErrTransientIO)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("mover: delete source: %v: %w", err, apperr.ErrTransientIO)
	}
	return nil
}

// finishInterrupted handles a destination left by a move that stopped after
// the link but before the source was removed. An identical copy lets the move
// complete; anything else is a real collision.
func finishInterrupted(src, dst string, srcInfo, dstInfo fs.FileInfo) error {
	if !dstInfo.Mode().IsRegular() || dstInfo.Size() != srcInfo.Size() {
		return fmt.Errorf("mover: destination %s: %w", dst, apperr.ErrAlreadyExists)
	}
	same, err := sameContent(src, dst)
	if err != nil {
		return fmt.Errorf("mover: compare with destination: %v: %w", err, apperr.ErrTransientIO)
	}
	if !same {
		return fmt.Errorf("mover: destination %s: %w", dst, apperr.ErrAlreadyExists)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("mover: delete source: %v: %w", err, apperr.ErrTransientIO)
	}
	return nil
}

func sameContent(a, b string) (bool, error) {
	ha, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func fileDigest(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func copyToTemp(ctx context.Context, src, dir string, srcInfo fs.FileInfo) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("mover: open source: %v: %w", err, apperr.ErrTransientIO)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, ".relayout-move-*")
	if err != nil {
		return "", fmt.Errorf("mover: create temp: %v: %w", err, apperr.ErrTransientIO)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: in}); err != nil {
		return "", fmt.Errorf("mover: copy %s: %w: %w", src, err, apperr.ErrTransientIO)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("mover: fsync: %v: %w", err, apperr.ErrTransientIO)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("mover: close temp: %v: %w", err, apperr.ErrTransientIO)
	}
	_ = os.Chmod(tmpName, srcInfo.Mode().Perm())
	_ = os.Chtimes(tmpName, srcInfo.ModTime(), srcInfo.ModTime())
	success = true
	return tmpName, nil
}

func step(ctx context.Context, name string) {
	if stepHook != nil && ctx.Err() == nil {
		stepHook(name)
	}
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
