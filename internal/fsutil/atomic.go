package fsutil

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// AtomicFile writes to a hidden sibling of its target and only moves the data
// into place on Commit. A reader of the target path never sees a partial file.
type AtomicFile struct {
	fs     FileSystem
	path   string
	tmp    string
	w      io.WriteCloser
	closed bool
}

// CreateAtomic starts an atomic write of path. The parent directory is
// created if needed. Callers should always defer Abort; it is a no-op after a
// successful Commit.
func CreateAtomic(fsys FileSystem, path string) (*AtomicFile, error) {
	if path == "" {
		return nil, errors.New("empty output path")
	}
	path = filepath.Clean(path)
	dir, base := filepath.Split(path)
	if base == "" || base == "." || base == ".." {
		return nil, fmt.Errorf("invalid output filename %q", path)
	}
	if dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	tmp := filepath.Join(dir, "."+base+".partial")
	w, err := fsys.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}
	return &AtomicFile{fs: fsys, path: path, tmp: tmp, w: w}, nil
}

// Path returns the final destination.
func (f *AtomicFile) Path() string { return f.path }

// Write implements io.Writer.
func (f *AtomicFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("write %s: file already closed", f.path)
	}
	return f.w.Write(p)
}

// Commit closes the temporary file and renames it over the target.
func (f *AtomicFile) Commit() error {
	if f.closed {
		return fmt.Errorf("commit %s: file already closed", f.path)
	}
	f.closed = true
	if err := f.w.Close(); err != nil {
		_ = f.fs.Remove(f.tmp)
		return fmt.Errorf("close %s: %w", f.tmp, err)
	}
	if err := f.fs.Rename(f.tmp, f.path); err != nil {
		_ = f.fs.Remove(f.tmp)
		return fmt.Errorf("rename %s: %w", f.tmp, err)
	}
	return nil
}

// Abort discards the temporary file. The target is left untouched.
func (f *AtomicFile) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true
	closeErr := f.w.Close()
	if err := f.fs.Remove(f.tmp); err != nil {
		return err
	}
	return closeErr
}
