// Package output writes build artifacts.
//
// The Writer creates directories idempotently, skips writes whose bytes
// already match what is on disk, replaces files atomically and retries an
// operation once when it fails with a transient error.
package output

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/roach88/assetpack/internal/ir"
)

// FS is the filesystem surface the Writer uses.
type FS interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
}

// OSFS writes through the os package, replacing files via a temp file and
// rename so readers never observe a partial artifact.
type OSFS struct{}

func (OSFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Writer writes artifacts for one build session.
//
// Thread-safety: all methods are safe for concurrent use.
type Writer struct {
	fs     FS
	logger *slog.Logger

	mu      sync.Mutex
	written map[string]string // path -> digest of the bytes last written or verified

	writes, skips int
}

// Option configures a Writer.
type Option func(*Writer)

// WithFS replaces the filesystem.
func WithFS(fs FS) Option {
	return func(w *Writer) { w.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// New creates a Writer.
func New(opts ...Option) *Writer {
	w := &Writer{
		fs:      OSFS{},
		logger:  slog.Default(),
		written: make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnsureDir creates dir and its parents. It checks the filesystem on every
// call, so a directory removed mid-session is recreated.
func (w *Writer) EnsureDir(dir string) error {
	if err := retryOnce(func() error { return w.fs.MkdirAll(dir, 0o755) }); err != nil {
		return ir.NewIOError("create directory", dir, err)
	}
	return nil
}

// EnsureDirs creates every directory in dirs.
func (w *Writer) EnsureDirs(dirs []string) error {
	for _, d := range dirs {
		if err := w.EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

// Write writes data to path unless the file already holds exactly data.
// It reports whether the file was written.
func (w *Writer) Write(path string, data []byte) (bool, error) {
	digest := ir.Digest(data)

	w.mu.Lock()
	prev, known := w.written[path]
	w.mu.Unlock()
	if known && prev == digest {
		if _, err := os.Stat(path); err == nil {
			w.skip()
			return false, nil
		}
	}
	if !known {
		if cur, err := w.fs.ReadFile(path); err == nil && bytes.Equal(cur, data) {
			w.remember(path, digest)
			w.skip()
			return false, nil
		}
	}

	if err := w.EnsureDir(filepath.Dir(path)); err != nil {
		return false, err
	}
	if err := retryOnce(func() error { return w.fs.WriteFile(path, data, 0o644) }); err != nil {
		w.forget(path)
		return false, ir.NewIOError("write artifact", path, err)
	}
	w.remember(path, digest)
	w.mu.Lock()
	w.writes++
	w.mu.Unlock()
	w.logger.Debug("output: wrote", "path", path, "bytes", len(data))
	return true, nil
}

// Forget drops the remembered state of path, forcing the next Write to
// compare against the disk.
func (w *Writer) Forget(path string) { w.forget(path) }

// Stats returns the number of performed and skipped writes.
func (w *Writer) Stats() (writes, skips int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes, w.skips
}

func (w *Writer) remember(path, digest string) {
	w.mu.Lock()
	w.written[path] = digest
	w.mu.Unlock()
}

func (w *Writer) forget(path string) {
	w.mu.Lock()
	delete(w.written, path)
	w.mu.Unlock()
}

func (w *Writer) skip() {
	w.mu.Lock()
	w.skips++
	w.mu.Unlock()
}

// IsTransient reports whether err is worth one retry.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

func retryOnce(fn func() error) error {
	err := fn()
	if err != nil && IsTransient(err) {
		err = fn()
	}
	return err
}
