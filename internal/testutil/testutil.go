// Package testutil provides shared test fixtures.
//
// It centralises the run file and temp-path helpers the command, config and
// store tests all need.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleRun is a two-lap run file with two generic channels sampled at
// different times. Lap 2's duration rounds up to a whole minute.
const SampleRun = `{
  "session": {"date": "2024-05-01T10:00:00Z", "driver": "A. Driver", "vehicle": "Kart 12", "track": "Ring"},
  "laps": [
    {"number": 1, "start": 0, "duration": 61.5},
    {"number": 2, "start": 61.5, "duration": 59.9996}
  ],
  "channels": [
    {"name": "Speed", "unit": "km/h", "family": "generic", "laps": [
      {"lap": 1, "timestamps": [0, 1, 2], "values": [10, 20, 30]},
      {"lap": 2, "timestamps": [61.5, 62.5], "values": [40, 50]}
    ]},
    {"name": "RPM", "unit": "rpm", "family": "generic", "laps": [
      {"lap": 1, "timestamps": [0.4, 1.6], "values": [1000, 2000]},
      {"lap": 2, "timestamps": [62], "values": [3000]}
    ]}
  ]
}`

// WriteFile writes body to name inside a fresh temp dir and returns the path.
func WriteFile(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// WriteSampleRun writes SampleRun as run.json and returns its path.
func WriteSampleRun(t testing.TB) string {
	t.Helper()
	return WriteFile(t, "run.json", SampleRun)
}

// TempStore returns a path for a new SQLite run store.
func TempStore(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "runs.db")
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
