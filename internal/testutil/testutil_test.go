package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/telemetry/runfile"
)

func TestWriteSampleRun(t *testing.T) {
	t.Parallel()

	path := WriteSampleRun(t)
	if filepath.Base(path) != "run.json" {
		t.Errorf("path = %q, want run.json", path)
	}

	cat, err := runfile.Load(fsutil.OSFileSystem{}, path)
	AssertNoError(t, err)
	if cat.LapCount() != 2 {
		t.Errorf("LapCount() = %d, want 2", cat.LapCount())
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := WriteFile(t, "export.yaml", "mode: union\n")
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	if string(data) != "mode: union\n" {
		t.Errorf("contents = %q", data)
	}
}

func TestTempStore(t *testing.T) {
	t.Parallel()

	a, b := TempStore(t), TempStore(t)
	if a == b {
		t.Errorf("TempStore returned the same path twice: %q", a)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Errorf("TempStore should not create the file, stat err = %v", err)
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	_, err := os.ReadFile(filepath.Join(t.TempDir(), "missing"))
	AssertError(t, err)
	AssertNoError(t, nil)
}
