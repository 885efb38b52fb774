package config

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/lapexport/internal/export"
	"github.com/banshee-data/lapexport/internal/testutil"
)

func TestEmptyExportConfig_Defaults(t *testing.T) {
	cfg := EmptyExportConfig()

	if got := cfg.GetChannels(); len(got) != 3 || got[0] != "ECEF position_X" {
		t.Errorf("GetChannels() = %v, want the ECEF defaults", got)
	}
	if cfg.GetMode() != export.ModeNearest {
		t.Errorf("GetMode() = %q, want nearest", cfg.GetMode())
	}
	if cfg.GetMasterChannel() != export.DefaultMaster {
		t.Errorf("GetMasterChannel() = %q", cfg.GetMasterChannel())
	}
	if cfg.GetToleranceSeconds() != 1e-6 {
		t.Errorf("GetToleranceSeconds() = %v, want 1e-6", cfg.GetToleranceSeconds())
	}
	if cfg.GetIncludeUnits() {
		t.Error("GetIncludeUnits() = true, want false")
	}
	if cfg.GetDelimiter() != ',' {
		t.Errorf("GetDelimiter() = %q, want ','", cfg.GetDelimiter())
	}
	if cfg.GetOutputPath() != "export.csv" {
		t.Errorf("GetOutputPath() = %q", cfg.GetOutputPath())
	}
	if cfg.GetWorkers() != 1 {
		t.Errorf("GetWorkers() = %d, want 1", cfg.GetWorkers())
	}
	if cfg.GetScanLimit() != 256 {
		t.Errorf("GetScanLimit() = %d, want 256", cfg.GetScanLimit())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadExportConfig_JSON(t *testing.T) {
	path := testutil.WriteFile(t, "export.json", `{
  "channels": ["Speed", "RPM"],
  "mode": "union",
  "tolerance_seconds": 0.001,
  "include_units": true,
  "delimiter": ";",
  "workers": 4
}`)

	cfg, err := LoadExportConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	opts := cfg.ExportOptions()
	if strings.Join(opts.Channels, ",") != "Speed,RPM" {
		t.Errorf("Channels = %v", opts.Channels)
	}
	if opts.Strategy.Mode != export.ModeUnion || opts.Strategy.Tolerance != 0.001 {
		t.Errorf("Strategy = %+v", opts.Strategy)
	}
	if !opts.IncludeUnits {
		t.Error("IncludeUnits = false, want true")
	}
	if opts.Workers != 4 {
		t.Errorf("Workers = %d, want 4", opts.Workers)
	}
	if cfg.GetDelimiter() != ';' {
		t.Errorf("GetDelimiter() = %q, want ';'", cfg.GetDelimiter())
	}
	// Unset fields keep their defaults.
	if cfg.GetOutputPath() != DefaultOutputPath {
		t.Errorf("GetOutputPath() = %q", cfg.GetOutputPath())
	}
}

func TestLoadExportConfig_YAML(t *testing.T) {
	path := testutil.WriteFile(t, "export.yaml", `
channels:
  - ECEF position_X
master_channel: ECEF position_X
delimiter: tab
output_path: out/lap.tsv
scan_limit: 64
`)

	cfg, err := LoadExportConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetDelimiter() != '\t' {
		t.Errorf("GetDelimiter() = %q, want tab", cfg.GetDelimiter())
	}
	if cfg.GetOutputPath() != "out/lap.tsv" {
		t.Errorf("GetOutputPath() = %q", cfg.GetOutputPath())
	}
	if sc := cfg.StrategyConfig(); sc.ScanLimit != 64 || sc.Master != "ECEF position_X" {
		t.Errorf("StrategyConfig() = %+v", sc)
	}

	empty := testutil.WriteFile(t, "empty.yml", "")
	if _, err := LoadExportConfig(empty); err != nil {
		t.Errorf("empty YAML should load: %v", err)
	}
}

func TestLoadExportConfig_Errors(t *testing.T) {
	cases := map[string]struct {
		name, body string
	}{
		"extension":     {"export.toml", `mode = "union"`},
		"bad json":      {"bad.json", `{"mode": `},
		"unknown json":  {"unknown.json", `{"moed": "union"}`},
		"unknown yaml":  {"unknown.yaml", "moed: union\n"},
		"bad mode":      {"mode.json", `{"mode": "cubic"}`},
		"bad delimiter": {"delim.json", `{"delimiter": "\""}`},
		"two chars":     {"delim2.json", `{"delimiter": ",,"}`},
		"negative tol":  {"tol.json", `{"tolerance_seconds": -1}`},
		"workers":       {"workers.json", `{"workers": -2}`},
		"empty channel": {"chan.yaml", "channels: [\"\"]\n"},
	}
	for name, tc := range cases {
		path := testutil.WriteFile(t, tc.name, tc.body)
		if _, err := LoadExportConfig(path); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}

	if _, err := LoadExportConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadExportConfig_TooLarge(t *testing.T) {
	body := `{"channels": ["` + strings.Repeat("x", maxFileSize) + `"]}`
	path := testutil.WriteFile(t, "big.json", body)
	_, err := LoadExportConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestValidate_Tolerance(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), -0.5} {
		cfg := &ExportConfig{ToleranceSeconds: ptrFloat64(v)}
		if err := cfg.Validate(); err == nil {
			t.Errorf("tolerance %v: expected error", v)
		}
	}
	cfg := &ExportConfig{ToleranceSeconds: ptrFloat64(0)}
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero tolerance should validate: %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := &ExportConfig{
		Channels:     []string{"A"},
		Mode:         ptrString("union"),
		IncludeUnits: ptrBool(true),
		Workers:      ptrInt(2),
	}
	base.Merge(&ExportConfig{
		Mode:       ptrString("positional"),
		OutputPath: ptrString("x.csv"),
		Workers:    ptrInt(8),
	})

	if base.GetMode() != export.ModePositional {
		t.Errorf("Mode = %q, want positional", base.GetMode())
	}
	if base.GetOutputPath() != "x.csv" {
		t.Errorf("OutputPath = %q", base.GetOutputPath())
	}
	if base.GetWorkers() != 8 {
		t.Errorf("Workers = %d, want 8", base.GetWorkers())
	}
	if !base.GetIncludeUnits() || base.Channels[0] != "A" {
		t.Error("unset override fields must not clear existing values")
	}
	base.Merge(nil)
}
