// Command lapexport inspects decoded telemetry runs and exports them as
// lap-aligned delimited tables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/monitoring"
	"github.com/banshee-data/lapexport/internal/timeutil"
	"github.com/banshee-data/lapexport/internal/version"
)

// app carries global flags and the process seams every command uses.
type app struct {
	file       string
	run        string
	configPath string
	logFormat  string
	output     string
	verbose    int

	stdout io.Writer
	stderr io.Writer
	fs     fsutil.FileSystem
	clock  timeutil.Clock
	logger zerolog.Logger
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		fs:     fsutil.OSFileSystem{},
		clock:  timeutil.RealClock{},
		logger: zerolog.Nop(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lapexport",
		Short: "Inspect telemetry runs and export lap-aligned tables",
		Long: `lapexport reads a decoded telemetry run, either a run JSON file or a run
stored in a SQLite database, and writes its channels as one delimited table
with a row per aligned sample and a lap column.

Examples:
  # Session summary
  lapexport -f run.json info

  # Export speed and RPM aligned on the speed channel
  lapexport -f run.json export --channels Speed,RPM --master Speed --out laps.csv

  # Keep runs in a store and export the most recent one
  lapexport -f run.json import --db runs.db
  lapexport -f runs.db export --mode union`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.file, "file", "f", "", "run file (.json) or run store (.db) to read")
	pf.StringVar(&a.run, "run", "", "run ID or unique prefix inside a store (default: most recent)")
	pf.StringVar(&a.configPath, "config", "", "export config file (.json, .yaml or .yml)")
	pf.CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	pf.StringVar(&a.logFormat, "log-format", "console", "log format: console or json")
	pf.StringVarP(&a.output, "output", "o", "text", "listing format: text or json")

	root.AddCommand(
		newExportCmd(a),
		newInfoCmd(a),
		newLapsCmd(a),
		newChannelsCmd(a),
		newLapCmd(a),
		newImportCmd(a),
		newRunsCmd(a),
		newDumpCmd(a),
		newDeleteCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup configures logging before any command runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	switch a.output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", a.output)
	}

	logger, err := monitoring.SetupLogger(monitoring.LogOptions{
		Verbosity: a.verbose,
		Format:    a.logFormat,
		Out:       a.stderr,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logger.Debug().Msgf(format, v...)
	})
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
