package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/lapexport/internal/db"
	"github.com/banshee-data/lapexport/internal/telemetry"
	"github.com/banshee-data/lapexport/internal/telemetry/runfile"
)

func isStore(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func (a *app) requireFile() error {
	if a.file == "" {
		return errors.New("no input file: pass -f/--file")
	}
	if !a.fs.Exists(a.file) {
		return fmt.Errorf("the file %q does not exist", a.file)
	}
	return nil
}

// openCatalog loads -f as a resident catalog: a run file directly, or the
// selected run of a store.
func (a *app) openCatalog(ctx context.Context) (*telemetry.MemoryCatalog, error) {
	if err := a.requireFile(); err != nil {
		return nil, err
	}
	if !isStore(a.file) {
		if a.run != "" {
			return nil, fmt.Errorf("--run only applies to a run store, not %s", a.file)
		}
		cat, err := runfile.Load(a.fs, a.file)
		if err != nil {
			return nil, fmt.Errorf("failed to load: %w", err)
		}
		a.logger.Debug().Str("file", a.file).Int("laps", cat.LapCount()).Msg("run file loaded")
		return cat, nil
	}

	store, err := a.openStore(a.file)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	id, err := store.ResolveRun(ctx, a.run)
	if err != nil {
		return nil, err
	}
	cat, err := store.LoadRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load: %w", err)
	}
	a.logger.Debug().Str("store", a.file).Str("run_id", id).Int("laps", cat.LapCount()).Msg("stored run loaded")
	return cat, nil
}

func (a *app) openStore(path string) (*db.DB, error) {
	store, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return store, nil
}
