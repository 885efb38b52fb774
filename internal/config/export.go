package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lapexport/internal/export"
)

// DefaultOutputPath is where an export is written when no path is given.
const DefaultOutputPath = "export.csv"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ExportConfig holds the settings of one export run. Every field is optional:
// the Get* methods fall back to defaults for anything left nil, so partial
// files are safe.
type ExportConfig struct {
	Channels         []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Mode             *string  `json:"mode,omitempty" yaml:"mode,omitempty"`
	MasterChannel    *string  `json:"master_channel,omitempty" yaml:"master_channel,omitempty"`
	ToleranceSeconds *float64 `json:"tolerance_seconds,omitempty" yaml:"tolerance_seconds,omitempty"`
	IncludeUnits     *bool    `json:"include_units,omitempty" yaml:"include_units,omitempty"`
	Delimiter        *string  `json:"delimiter,omitempty" yaml:"delimiter,omitempty"` // one character, or "tab"
	OutputPath       *string  `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Workers          *int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	ScanLimit        *int     `json:"scan_limit,omitempty" yaml:"scan_limit,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExportConfig returns an ExportConfig with all fields unset.
func EmptyExportConfig() *ExportConfig {
	return &ExportConfig{}
}

// LoadExportConfig loads an ExportConfig from a .json, .yaml or .yml file.
// The file must be under 1MB and is validated after parsing.
func LoadExportConfig(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExportConfig()
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ExportConfig) Validate() error {
	if c.Mode != nil {
		if _, err := export.ParseMode(*c.Mode); err != nil {
			return err
		}
	}

	if c.ToleranceSeconds != nil && (!(*c.ToleranceSeconds >= 0) || math.IsInf(*c.ToleranceSeconds, 1)) {
		return fmt.Errorf("tolerance_seconds must be a finite non-negative number, got %v", *c.ToleranceSeconds)
	}

	if c.Delimiter != nil {
		if _, err := parseDelimiter(*c.Delimiter); err != nil {
			return err
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.ScanLimit != nil && *c.ScanLimit < 0 {
		return fmt.Errorf("scan_limit must be non-negative, got %d", *c.ScanLimit)
	}

	for i, name := range c.Channels {
		if name == "" {
			return fmt.Errorf("channels[%d] is empty", i)
		}
	}

	return nil
}

func parseDelimiter(s string) (rune, error) {
	if s == "tab" || s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || !export.ValidDelimiter(r) {
		return 0, fmt.Errorf("delimiter must be a single character other than a quote or newline, got %q", s)
	}
	return r, nil
}

// Merge copies every field set in o over c.
func (c *ExportConfig) Merge(o *ExportConfig) {
	if o == nil {
		return
	}
	if o.Channels != nil {
		c.Channels = o.Channels
	}
	if o.Mode != nil {
		c.Mode = o.Mode
	}
	if o.MasterChannel != nil {
		c.MasterChannel = o.MasterChannel
	}
	if o.ToleranceSeconds != nil {
		c.ToleranceSeconds = o.ToleranceSeconds
	}
	if o.IncludeUnits != nil {
		c.IncludeUnits = o.IncludeUnits
	}
	if o.Delimiter != nil {
		c.Delimiter = o.Delimiter
	}
	if o.OutputPath != nil {
		c.OutputPath = o.OutputPath
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
	if o.ScanLimit != nil {
		c.ScanLimit = o.ScanLimit
	}
}

// GetChannels returns the requested channel names or export.DefaultChannels.
func (c *ExportConfig) GetChannels() []string {
	if len(c.Channels) == 0 {
		return export.DefaultChannels
	}
	return c.Channels
}

// GetMode returns the alignment mode or the default (nearest).
func (c *ExportConfig) GetMode() export.Mode {
	if c.Mode == nil {
		return export.ModeNearest
	}
	m, err := export.ParseMode(*c.Mode)
	if err != nil {
		return export.ModeNearest
	}
	return m
}

// GetMasterChannel returns the master channel name or the default.
func (c *ExportConfig) GetMasterChannel() string {
	if c.MasterChannel == nil || *c.MasterChannel == "" {
		return export.DefaultMaster
	}
	return *c.MasterChannel
}

// GetToleranceSeconds returns the union-mode tolerance or the default.
func (c *ExportConfig) GetToleranceSeconds() float64 {
	if c.ToleranceSeconds == nil {
		return export.DefaultTolerance
	}
	return *c.ToleranceSeconds
}

// GetIncludeUnits returns include_units or the default (false).
func (c *ExportConfig) GetIncludeUnits() bool {
	if c.IncludeUnits == nil {
		return false
	}
	return *c.IncludeUnits
}

// GetDelimiter returns the field delimiter or the default (comma).
func (c *ExportConfig) GetDelimiter() rune {
	if c.Delimiter == nil {
		return ','
	}
	r, err := parseDelimiter(*c.Delimiter)
	if err != nil {
		return ','
	}
	return r
}

// GetOutputPath returns the output path or DefaultOutputPath.
func (c *ExportConfig) GetOutputPath() string {
	if c.OutputPath == nil || *c.OutputPath == "" {
		return DefaultOutputPath
	}
	return *c.OutputPath
}

// GetWorkers returns the worker count or the default (1, sequential).
func (c *ExportConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers < 1 {
		return 1
	}
	return *c.Workers
}

// GetScanLimit returns the nearest-mode scan limit or the default.
func (c *ExportConfig) GetScanLimit() int {
	if c.ScanLimit == nil || *c.ScanLimit < 1 {
		return export.DefaultScanLimit
	}
	return *c.ScanLimit
}

// StrategyConfig returns the alignment settings.
func (c *ExportConfig) StrategyConfig() export.StrategyConfig {
	return export.StrategyConfig{
		Mode:      c.GetMode(),
		Master:    c.GetMasterChannel(),
		Tolerance: c.GetToleranceSeconds(),
		ScanLimit: c.GetScanLimit(),
	}
}

// ExportOptions returns exporter options for this configuration. Logging,
// metrics and the clock are left for the caller.
func (c *ExportConfig) ExportOptions() export.Options {
	return export.Options{
		Channels:     c.GetChannels(),
		Strategy:     c.StrategyConfig(),
		IncludeUnits: c.GetIncludeUnits(),
		Workers:      c.GetWorkers(),
	}
}
