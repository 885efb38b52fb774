package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lapexport/internal/config"
	"github.com/banshee-data/lapexport/internal/export"
	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/monitoring"
	"github.com/banshee-data/lapexport/internal/watch"
)

type exportFlags struct {
	out         string
	channels    []string
	mode        string
	master      string
	tolerance   float64
	units       bool
	delimiter   string
	workers     int
	scanLimit   int
	metricsFile string
	watch       bool
}

func newExportCmd(a *app) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export selected channels as a lap-aligned table",
		Long: `Export writes one delimited table covering every lap. The header is
lap, then time (except in positional mode), then one column per selected
channel, plus a <name>_UNIT column per channel with --units.

Alignment modes:
  nearest     rows follow the master channel's timestamps; other channels
              take their closest sample (ties go to the earlier sample)
  union       a row for every distinct timestamp across all channels;
              channels without a sample there are left blank
  positional  row k holds each channel's k-th sample (deprecated)

The table is written to a temporary file and moved into place only when the
whole export succeeds. Use --out - to write to stdout. With --watch the
export is repeated every time the run file changes, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.out, "out", "", "output path, or - for stdout (default "+config.DefaultOutputPath+")")
	fl.StringSliceVar(&f.channels, "channels", nil, "channel names to export (default ECEF position X/Y/Z)")
	fl.StringVar(&f.mode, "mode", "", "alignment mode: nearest, union or positional (default nearest)")
	fl.StringVar(&f.master, "master", "", "master channel for nearest mode (default "+export.DefaultMaster+")")
	fl.Float64Var(&f.tolerance, "tolerance", export.DefaultTolerance, "union mode timestamp match window in seconds")
	fl.BoolVar(&f.units, "units", false, "add a <name>_UNIT column after each channel")
	fl.StringVar(&f.delimiter, "delimiter", "", `field delimiter, one character or "tab" (default ",")`)
	fl.IntVar(&f.workers, "workers", 0, "laps prepared concurrently (default 1)")
	fl.IntVar(&f.scanLimit, "scan-limit", 0, "channel length above which nearest mode uses binary search")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")
	fl.BoolVar(&f.watch, "watch", false, "re-export whenever the run file changes")
	return cmd
}

// exportConfig layers flags the user set over the --config file.
func (a *app) exportConfig(cmd *cobra.Command, f exportFlags) (*config.ExportConfig, error) {
	cfg := config.EmptyExportConfig()
	if a.configPath != "" {
		loaded, err := config.LoadExportConfig(a.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fl := cmd.Flags()
	o := &config.ExportConfig{}
	if fl.Changed("channels") {
		o.Channels = f.channels
	}
	if fl.Changed("mode") {
		o.Mode = &f.mode
	}
	if fl.Changed("master") {
		o.MasterChannel = &f.master
	}
	if fl.Changed("tolerance") {
		o.ToleranceSeconds = &f.tolerance
	}
	if fl.Changed("units") {
		o.IncludeUnits = &f.units
	}
	if fl.Changed("delimiter") {
		o.Delimiter = &f.delimiter
	}
	if fl.Changed("out") {
		o.OutputPath = &f.out
	}
	if fl.Changed("workers") {
		o.Workers = &f.workers
	}
	if fl.Changed("scan-limit") {
		o.ScanLimit = &f.scanLimit
	}
	cfg.Merge(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid export settings: %w", err)
	}
	return cfg, nil
}

func (a *app) runExport(cmd *cobra.Command, f exportFlags) error {
	cfg, err := a.exportConfig(cmd, f)
	if err != nil {
		return err
	}
	if !f.watch {
		return a.exportOnce(cmd, cfg, f)
	}

	if err := a.requireFile(); err != nil {
		return err
	}
	if isStore(a.file) {
		return errors.New("--watch needs a run file, not a run store")
	}
	if cfg.GetOutputPath() == "-" {
		return errors.New("--watch cannot write to stdout")
	}
	if err := a.exportOnce(cmd, cfg, f); err != nil {
		a.logger.Error().Err(err).Msg("initial export failed")
	}
	return watch.File(cmd.Context(), watch.Config{Path: a.file, Logger: &a.logger}, func(context.Context) error {
		return a.exportOnce(cmd, cfg, f)
	})
}

func (a *app) exportOnce(cmd *cobra.Command, cfg *config.ExportConfig, f exportFlags) error {
	ctx := cmd.Context()
	cat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}

	metrics := monitoring.NewExportMetrics()
	opts := cfg.ExportOptions()
	opts.Logger = &a.logger
	opts.Metrics = metrics
	opts.Clock = a.clock
	exp, err := export.New(opts)
	if err != nil {
		return err
	}

	path := cfg.GetOutputPath()
	var sink io.Writer = cmd.OutOrStdout()
	summary := cmd.OutOrStdout()
	var out *fsutil.AtomicFile
	if path != "-" {
		out, err = fsutil.CreateAtomic(a.fs, path)
		if err != nil {
			return err
		}
		defer out.Abort()
		sink = out
	} else {
		summary = cmd.ErrOrStderr()
	}

	w, err := export.NewWriter(sink, cfg.GetDelimiter())
	if err != nil {
		return err
	}

	res, exportErr := exp.Export(ctx, cat, w)
	if exportErr == nil && out != nil {
		if err := out.Commit(); err != nil {
			metrics.ExportFailed(export.FailureReason(export.ErrWriteFailure))
			exportErr = fmt.Errorf("%w: %w", export.ErrWriteFailure, err)
		}
	}

	if f.metricsFile != "" {
		if err := metrics.WriteTextfile(f.metricsFile); err != nil {
			a.logger.Warn().Err(err).Str("path", f.metricsFile).Msg("metrics not written")
		}
	}
	if exportErr != nil {
		return fmt.Errorf("export failed: %w", exportErr)
	}

	if len(res.Missing) > 0 {
		a.logger.Warn().Strs("channels", res.Missing).Msg("requested channels not found")
	}
	fmt.Fprintf(summary, "wrote %d rows for %d laps (%d columns) to %s\n", res.Rows, res.Laps, res.Columns, path)
	return nil
}
