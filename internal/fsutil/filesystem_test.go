package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_CreateRenameRemove(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	src := filepath.Join(dir, "a.csv")
	dst := filepath.Join(dir, "sub", "b.csv")

	w, err := fs.Create(src)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := io.WriteString(w, "lap,time\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := fs.Rename(src, dst); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	data, err := fs.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "lap,time\n" {
		t.Errorf("unexpected content %q", data)
	}

	if err := fs.Remove(dst); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", dst)
	}
}

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/created.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("created content")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Not visible until Close.
	data, _ := mfs.ReadFile("/created.txt")
	if len(data) != 0 {
		t.Errorf("expected empty file before close, got %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err = mfs.ReadFile("/created.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "created content" {
		t.Errorf("expected 'created content', got %q", data)
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if _, err := mfs.ReadFile("/nope"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/a", []byte("x"))

	if err := mfs.Rename("/a", "/b"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/a") {
		t.Error("expected /a to be gone")
	}
	if !mfs.Exists("/b") {
		t.Error("expected /b to exist")
	}
	if err := mfs.Rename("/missing", "/c"); err == nil {
		t.Error("expected error renaming missing file")
	}
}

func TestMemoryFileSystem_MkdirAllAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/out/laps/2025", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, p := range []string{"/out", "/out/laps", "/out/laps/2025"} {
		if !mfs.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if err := mfs.Remove("/out/laps/2025"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := mfs.Remove("/out/laps/2025"); err == nil {
		t.Error("expected error removing twice")
	}
}

func TestMemoryFileSystem_FailWritesAfter(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.FailWritesAfter = 4

	w, err := mfs.Create("/f")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("abcd")); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if _, err := w.Write([]byte("e")); err == nil {
		t.Error("expected write past the limit to fail")
	}
}
