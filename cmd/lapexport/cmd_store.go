package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/telemetry/runfile"
)

func newImportCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a run file into a SQLite run store",
		Long: `Import copies every lap, channel and sample of the run file given with -f
into the store named by --db, creating and migrating the store if needed.
The new run ID is printed on stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}
			if err := a.requireFile(); err != nil {
				return err
			}
			if isStore(a.file) {
				return fmt.Errorf("%s is already a run store", a.file)
			}
			cat, err := runfile.Load(a.fs, a.file)
			if err != nil {
				return fmt.Errorf("failed to load: %w", err)
			}

			store, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.ImportRun(cmd.Context(), cat, a.file)
			if err != nil {
				return err
			}
			a.logger.Info().Str("run_id", id).Str("store", dbPath).Int("laps", cat.LapCount()).Msg("run imported")
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "run store to import into (.db)")
	return cmd
}

func (a *app) requireStore() error {
	if err := a.requireFile(); err != nil {
		return err
	}
	if !isStore(a.file) {
		return fmt.Errorf("%s is not a run store (.db, .sqlite or .sqlite3)", a.file)
	}
	return nil
}

func newRunsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List the runs in a store, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireStore(); err != nil {
				return err
			}
			store, err := a.openStore(a.file)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(w, runs)
			}
			tw := newTable(w)
			fmt.Fprintln(tw, "ID\tIMPORTED\tDRIVER\tVEHICLE\tTRACK\tLAPS\tCHANNELS\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.ImportedAt.Local().Format(time.DateTime),
					orUnknown(r.Driver), orUnknown(r.Vehicle), orUnknown(r.Track),
					r.Laps, r.Channels, r.Source)
			}
			return tw.Flush()
		},
	}
}

func newDumpCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the selected run back out as a run file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			f, err := runfile.FromCatalog(cat)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return runfile.Encode(cmd.OutOrStdout(), f)
			}
			return writeAtomic(a.fs, out, func(w io.Writer) error {
				return runfile.Encode(w, f)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "run file to write, or - for stdout")
	return cmd
}

// writeAtomic runs fn against a temp file and renames it over path only if fn
// succeeds.
func writeAtomic(fsys fsutil.FileSystem, path string, fn func(io.Writer) error) error {
	f, err := fsutil.CreateAtomic(fsys, path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if err := fn(f); err != nil {
		return err
	}
	return f.Commit()
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run (ID or unique prefix) from a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireStore(); err != nil {
				return err
			}
			if args[0] == "" {
				return errors.New("run ID must not be empty")
			}
			store, err := a.openStore(a.file)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.ResolveRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			a.logger.Info().Str("run_id", id).Msg("run deleted")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}
