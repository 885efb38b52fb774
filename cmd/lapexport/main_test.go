package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapexport/internal/db"
	"github.com/banshee-data/lapexport/internal/export"
	"github.com/banshee-data/lapexport/internal/telemetry/runfile"
	"github.com/banshee-data/lapexport/internal/testutil"
)

const nearestCSV = "lap,time,Speed,RPM\n" +
	"1,0.000,10,1000\n" +
	"1,1.000,20,1000\n" +
	"1,2.000,30,2000\n" +
	"2,61.500,40,3000\n" +
	"2,62.500,50,3000\n"

// runCLI executes the root command with args and returns what it wrote.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), args...)
}

func runCLIContext(ctx context.Context, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	a := newApp()
	a.stdout = &stdout
	a.stderr = &stderr
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestExport_ToFile(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	out := filepath.Join(t.TempDir(), "nested", "laps.csv")

	stdout, _, err := runCLI(t, "-f", run, "export", "--channels", "Speed,RPM", "--master", "Speed", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 5 rows for 2 laps (4 columns) to "+out)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	if diff := cmp.Diff(nearestCSV, string(got)); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}
	assert.NoFileExists(t, filepath.Join(filepath.Dir(out), ".laps.csv.partial"))
}

func TestExport_Stdout(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	stdout, stderr, err := runCLI(t, "-f", run, "export", "--channels", "Speed,RPM", "--master", "Speed", "--out", "-")
	require.NoError(t, err)
	assert.Equal(t, nearestCSV, stdout)
	assert.Contains(t, stderr, "wrote 5 rows for 2 laps")
}

func TestExport_ConfigFileAndOverrides(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	cfg := testutil.WriteFile(t, "export.yaml", "channels: [Speed, RPM]\nmode: union\ndelimiter: \";\"\n")

	stdout, _, err := runCLI(t, "-f", run, "--config", cfg, "export", "--out", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "lap;time;Speed;RPM", lines[0])
	assert.Equal(t, "1;0.000;10;", lines[1])
	assert.Equal(t, "1;0.400;;1000", lines[2])
	assert.Equal(t, "2;62.000;;3000", lines[7])

	stdout, _, err = runCLI(t, "-f", run, "--config", cfg, "export", "--out", "-", "--delimiter", "tab")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "lap\ttime\tSpeed\tRPM\n"), "got %q", stdout)
}

func TestExport_InvalidSettings(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	_, _, err := runCLI(t, "-f", run, "export", "--mode", "cubic", "--out", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid export settings")

	_, _, err = runCLI(t, "-f", run, "export", "--tolerance", "-1", "--out", "-")
	require.Error(t, err)
}

func TestExport_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	_, _, err := runCLI(t, "-f", missing, "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, _, err = runCLI(t, "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-f/--file")
}

func TestExport_FailureLeavesNoOutput(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "laps.csv")
	metrics := filepath.Join(dir, "export.prom")

	_, _, err := runCLI(t, "-f", run, "export", "--channels", "Speed,RPM", "--master", "Throttle",
		"--out", out, "--metrics-file", metrics)
	require.Error(t, err)
	assert.ErrorIs(t, err, export.ErrMasterChannelMissing)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, ".laps.csv.partial"))

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `lapexport_export_failures_total{reason="master_channel_missing"} 1`)
}

func TestExport_Watch(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	out := filepath.Join(t.TempDir(), "laps.csv")

	_, _, err := runCLI(t, "-f", run, "export", "--watch", "--out", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdout")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := runCLIContext(ctx, "-f", run, "export", "--watch",
			"--channels", "Speed,RPM", "--master", "Speed", "--out", out)
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(out)
		return err == nil && string(got) == nearestCSV
	}, 5*time.Second, 20*time.Millisecond)
	// Let the watcher register before changing the run.
	time.Sleep(200 * time.Millisecond)

	changed := strings.Replace(testutil.SampleRun, "[10, 20, 30]", "[11, 21, 31]", 1)
	require.NoError(t, os.WriteFile(run, []byte(changed), 0o644))
	require.Eventually(t, func() bool {
		got, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(got), "1,0.000,11,1000\n")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestStore_ImportExportDumpDelete(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	store := testutil.TempStore(t)

	_, _, err := runCLI(t, "-f", run, "import")
	require.Error(t, err, "import without --db must fail")

	stdout, _, err := runCLI(t, "-f", run, "import", "--db", store)
	require.NoError(t, err)
	id := strings.TrimSpace(stdout)
	require.Len(t, id, 36)

	stdout, _, err = runCLI(t, "-f", store, "-o", "json", "runs")
	require.NoError(t, err)
	var runs []db.RunSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 2, runs[0].Laps)
	assert.Equal(t, 2, runs[0].Channels)
	assert.Equal(t, "A. Driver", runs[0].Driver)

	stdout, _, err = runCLI(t, "-f", store, "runs")
	require.NoError(t, err)
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "Kart 12")

	stdout, _, err = runCLI(t, "-f", store, "--run", id[:8], "export",
		"--channels", "Speed,RPM", "--master", "Speed", "--out", "-")
	require.NoError(t, err)
	assert.Equal(t, nearestCSV, stdout)

	dump := filepath.Join(t.TempDir(), "dump.json")
	_, _, err = runCLI(t, "-f", store, "dump", "--out", dump)
	require.NoError(t, err)
	f, err := os.Open(dump)
	require.NoError(t, err)
	defer f.Close()
	cat, err := runfile.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.LapCount())

	_, _, err = runCLI(t, "-f", store, "--run", "zzzz", "export", "--out", "-")
	assert.ErrorIs(t, err, db.ErrRunNotFound)

	stdout, _, err = runCLI(t, "-f", store, "delete", id[:8])
	require.NoError(t, err)
	assert.Equal(t, "deleted "+id+"\n", stdout)

	stdout, _, err = runCLI(t, "-f", store, "-o", "json", "runs")
	require.NoError(t, err)
	runs = nil
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	assert.Empty(t, runs)
}

func TestRunFlagRejectedForRunFile(t *testing.T) {
	run := testutil.WriteSampleRun(t)
	_, _, err := runCLI(t, "-f", run, "--run", "abc", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--run only applies")

	_, _, err = runCLI(t, "-f", run, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a run store")
}

func TestInfo(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	stdout, _, err := runCLI(t, "-f", run, "info")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DATETIME                      : 2024-05-01T10:00:00Z")
	assert.Contains(t, stdout, "DRIVER                        : A. Driver")
	assert.Contains(t, stdout, "CHAMPIONSHIP                  : Unknown / Unknown")
	assert.Contains(t, stdout, "LAPS                          : 2")
	assert.Contains(t, stdout, "DATA CHANNELS                 : 2")

	stdout, _, err = runCLI(t, "-f", run, "-o", "json", "info")
	require.NoError(t, err)
	var info infoOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "Ring", info.Track)
	assert.Equal(t, 2, info.Laps)
	assert.Equal(t, map[string]int{"generic": 2, "raw": 0}, info.Channels)
}

func TestLaps(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	stdout, _, err := runCLI(t, "-f", run, "laps")
	require.NoError(t, err)
	assert.Contains(t, stdout, "LAP TIME")
	assert.Contains(t, stdout, "01:01.500")
	assert.Contains(t, stdout, "01:00.000")

	stdout, _, err = runCLI(t, "-f", run, "-o", "json", "laps")
	require.NoError(t, err)
	var laps []lapOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &laps))
	want := []lapOutput{
		{Lap: 1, Start: 0, Duration: 61.5, LapTime: "01:01.500"},
		{Lap: 2, Start: 61.5, Duration: 59.9996, LapTime: "01:00.000"},
	}
	if diff := cmp.Diff(want, laps); diff != "" {
		t.Errorf("laps mismatch (-want +got):\n%s", diff)
	}
}

func TestChannels(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	stdout, _, err := runCLI(t, "-f", run, "channels")
	require.NoError(t, err)
	assert.Contains(t, stdout, "PREVIEW (TIMESTAMPS)")
	assert.Contains(t, stdout, "0.000, 1.000, 2.000")
	assert.Contains(t, stdout, "10, 20, 30")

	stdout, _, err = runCLI(t, "-f", run, "-o", "json", "channels")
	require.NoError(t, err)
	var chans []channelOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &chans))
	require.Len(t, chans, 2)
	assert.Equal(t, "Speed", chans[0].Name)
	assert.Equal(t, 5, chans[0].Count)
	assert.Equal(t, []jsonFloat{10, 20, 30}, chans[0].Values)
	assert.InDelta(t, 30, float64(chans[0].Mean), 1e-9)
	assert.Equal(t, "rpm", chans[1].Unit)
	assert.Equal(t, jsonFloat(3000), chans[1].Max)
}

func TestLap(t *testing.T) {
	run := testutil.WriteSampleRun(t)

	stdout, _, err := runCLI(t, "-f", run, "-o", "json", "lap", "2")
	require.NoError(t, err)
	var chans []lapChannelOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &chans))
	require.Len(t, chans, 2)
	assert.Equal(t, 2, chans[0].Lap)
	assert.True(t, chans[0].Present)
	assert.Equal(t, 2, chans[0].Count)
	assert.Equal(t, []jsonFloat{61.5, 62.5}, chans[0].Timestamps)

	stdout, _, err = runCLI(t, "-f", run, "lap", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0.400, 1.600")

	_, _, err = runCLI(t, "-f", run, "lap", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, _, err = runCLI(t, "-f", run, "lap", "first")
	require.Error(t, err)
}

func TestVersionAndFormats(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "lapexport dev"), "got %q", stdout)

	stdout, _, err = runCLI(t, "-o", "json", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"version": "dev"`)

	_, _, err = runCLI(t, "-o", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")

	_, _, err = runCLI(t, "--log-format", "xml", "version")
	require.Error(t, err)
}

func TestLapTime(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00.000",
		61.5:    "01:01.500",
		59.9996: "01:00.000",
		754.321: "12:34.321",
		-1:      "-",
	}
	for in, want := range cases {
		assert.Equal(t, want, lapTime(in), "lapTime(%v)", in)
	}
}
