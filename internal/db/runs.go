package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/lapexport/internal/telemetry"
)

// ErrRunNotFound is returned when no stored run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRun is returned when an ID prefix matches more than one run.
var ErrAmbiguousRun = errors.New("run ID prefix is ambiguous")

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	ImportedAt time.Time `json:"imported_at"`
	Driver     string    `json:"driver"`
	Vehicle    string    `json:"vehicle"`
	Track      string    `json:"track"`
	Laps       int       `json:"laps"`
	Channels   int       `json:"channels"`
}

// ImportRun copies every lap, channel and sample of cat into the store in a
// single transaction and returns the new run ID. Channels keep their family
// and catalog ID, so a loaded run selects in the same order.
func (db *DB) ImportRun(ctx context.Context, cat telemetry.Catalog, source string) (string, error) {
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	var s telemetry.Session
	if sd, ok := cat.(telemetry.SessionDescriber); ok {
		s = sd.Session()
	}
	var date sql.NullString
	if !s.Date.IsZero() {
		date = sql.NullString{String: s.Date.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, imported_at, session_date, driver, vehicle, track, championship, venue_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, time.Now().UTC().Format(time.RFC3339Nano), date,
		s.Driver, s.Vehicle, s.Track, s.Championship, s.VenueType)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i := 0; i < cat.LapCount(); i++ {
		lap, err := cat.LapInfo(i)
		if err != nil {
			return "", fmt.Errorf("lap %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO laps (run_id, lap_index, lap_number, start_s, duration_s) VALUES (?, ?, ?, ?, ?)`,
			id, i, lap.Number, lap.Start, lap.Duration); err != nil {
			return "", fmt.Errorf("failed to insert lap %d: %w", i+1, err)
		}
	}

	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, family, channel_id, lap_index, seq, ts, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for _, fam := range telemetry.Families {
		for cid := 0; cid < cat.ChannelCount(fam); cid++ {
			name, err := cat.ChannelName(fam, cid)
			if errors.Is(err, telemetry.ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("%s channel %d: %w", fam, cid, err)
			}
			unit, err := cat.ChannelUnit(fam, cid)
			if err != nil && !errors.Is(err, telemetry.ErrNotFound) {
				return "", fmt.Errorf("%s channel %q: %w", fam, name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO channels (run_id, family, channel_id, name, unit) VALUES (?, ?, ?, ?, ?)`,
				id, int(fam), cid, name, unit); err != nil {
				return "", fmt.Errorf("failed to insert channel %q: %w", name, err)
			}

			for lap := 0; lap < cat.LapCount(); lap++ {
				series, err := cat.LapChannelSamples(fam, lap, cid)
				if errors.Is(err, telemetry.ErrNotFound) {
					continue
				}
				if err != nil {
					return "", fmt.Errorf("%s channel %q lap %d: %w", fam, name, lap+1, err)
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO channel_laps (run_id, family, channel_id, lap_index) VALUES (?, ?, ?, ?)`,
					id, int(fam), cid, lap); err != nil {
					return "", fmt.Errorf("failed to insert %q lap %d: %w", name, lap+1, err)
				}
				for k := 0; k < series.Len(); k++ {
					if _, err := sampleStmt.ExecContext(ctx, id, int(fam), cid, lap, k,
						nullable(series.Timestamps[k]), nullable(series.Values[k])); err != nil {
						return "", fmt.Errorf("failed to insert %q sample: %w", name, err)
					}
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit import: %w", err)
	}
	return id, nil
}

// SQLite has no NaN; it is stored as NULL and read back as NaN.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// ListRuns returns every stored run, most recently imported first.
func (db *DB) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.run_id, r.source, r.imported_at, r.driver, r.vehicle, r.track,
		       (SELECT COUNT(*) FROM laps l WHERE l.run_id = r.run_id),
		       (SELECT COUNT(*) FROM channels c WHERE c.run_id = r.run_id)
		FROM runs r
		ORDER BY r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var imported string
		if err := rows.Scan(&r.ID, &r.Source, &imported, &r.Driver, &r.Vehicle, &r.Track, &r.Laps, &r.Channels); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.ImportedAt, err = time.Parse(time.RFC3339Nano, imported); err != nil {
			return nil, fmt.Errorf("run %s: bad imported_at %q: %w", r.ID, imported, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolveRun maps a full ID or a unique ID prefix to a stored run ID. An
// empty ref selects the most recently imported run.
func (db *DB) ResolveRun(ctx context.Context, ref string) (string, error) {
	var rows *sql.Rows
	var err error
	if ref == "" {
		rows, err = db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY rowid DESC LIMIT 1`)
	} else {
		rows, err = db.QueryContext(ctx, `SELECT run_id FROM runs WHERE run_id = ? OR substr(run_id, 1, ?) = ? LIMIT 2`,
			ref, len(ref), strings.ToLower(ref))
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		if ref == "" {
			return "", fmt.Errorf("store is empty: %w", ErrRunNotFound)
		}
		return "", fmt.Errorf("%q: %w", ref, ErrRunNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%q: %w", ref, ErrAmbiguousRun)
	}
}

// LoadRun materialises a stored run as a resident catalog.
func (db *DB) LoadRun(ctx context.Context, id string) (*telemetry.MemoryCatalog, error) {
	cat := telemetry.NewMemoryCatalog()

	var s telemetry.Session
	var date sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT session_date, driver, vehicle, track, championship, venue_type
		FROM runs WHERE run_id = ?`, id).
		Scan(&date, &s.Driver, &s.Vehicle, &s.Track, &s.Championship, &s.VenueType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	if date.Valid {
		if s.Date, err = time.Parse(time.RFC3339Nano, date.String); err != nil {
			return nil, fmt.Errorf("run %s: bad session_date %q: %w", id, date.String, err)
		}
	}
	cat.SetSession(s)

	if err := db.loadLaps(ctx, id, cat); err != nil {
		return nil, err
	}
	ids, err := db.loadChannels(ctx, id, cat)
	if err != nil {
		return nil, err
	}
	if err := db.loadSamples(ctx, id, cat, ids); err != nil {
		return nil, err
	}
	return cat, nil
}

func (db *DB) loadLaps(ctx context.Context, id string, cat *telemetry.MemoryCatalog) error {
	rows, err := db.QueryContext(ctx,
		`SELECT lap_number, start_s, duration_s FROM laps WHERE run_id = ? ORDER BY lap_index`, id)
	if err != nil {
		return fmt.Errorf("failed to load laps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lap telemetry.Lap
		if err := rows.Scan(&lap.Number, &lap.Start, &lap.Duration); err != nil {
			return fmt.Errorf("failed to scan lap: %w", err)
		}
		cat.AddLap(lap)
	}
	return rows.Err()
}

type channelKey struct {
	family telemetry.Family
	id     int
}

// loadChannels registers channels in stored order and maps stored IDs to the
// IDs the catalog assigned.
func (db *DB) loadChannels(ctx context.Context, id string, cat *telemetry.MemoryCatalog) (map[channelKey]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT family, channel_id, name, unit FROM channels WHERE run_id = ? ORDER BY family, channel_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer rows.Close()

	ids := make(map[channelKey]int)
	for rows.Next() {
		var fam, cid int
		var name, unit string
		if err := rows.Scan(&fam, &cid, &name, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		f := telemetry.Family(fam)
		ids[channelKey{f, cid}] = cat.AddChannel(f, name, unit)
	}
	return ids, rows.Err()
}

func (db *DB) loadSamples(ctx context.Context, id string, cat *telemetry.MemoryCatalog, ids map[channelKey]int) error {
	if err := db.loadChannelLaps(ctx, id, cat, ids); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT family, channel_id, lap_index, ts, value FROM samples
		WHERE run_id = ?
		ORDER BY family, channel_id, lap_index, seq`, id)
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	defer rows.Close()

	type seriesKey struct {
		ch  channelKey
		lap int
	}
	var cur seriesKey
	var series telemetry.Series
	have := false
	flush := func() error {
		if !have {
			return nil
		}
		return cat.SetLapSamples(cur.ch.family, ids[cur.ch], cur.lap, series)
	}

	for rows.Next() {
		var fam, cid, lap int
		var ts, v sql.NullFloat64
		if err := rows.Scan(&fam, &cid, &lap, &ts, &v); err != nil {
			return fmt.Errorf("failed to scan sample: %w", err)
		}
		key := seriesKey{channelKey{telemetry.Family(fam), cid}, lap}
		if !have || key != cur {
			if err := flush(); err != nil {
				return err
			}
			cur, series, have = key, telemetry.Series{}, true
		}
		series.Timestamps = append(series.Timestamps, fromNullable(ts))
		series.Values = append(series.Values, fromNullable(v))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	return flush()
}

// loadChannelLaps marks every lap a channel has data for as present, so a
// lap with zero samples stays distinct from a missing one.
func (db *DB) loadChannelLaps(ctx context.Context, id string, cat *telemetry.MemoryCatalog, ids map[channelKey]int) error {
	rows, err := db.QueryContext(ctx,
		`SELECT family, channel_id, lap_index FROM channel_laps WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to load channel laps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fam, cid, lap int
		if err := rows.Scan(&fam, &cid, &lap); err != nil {
			return fmt.Errorf("failed to scan channel lap: %w", err)
		}
		key := channelKey{telemetry.Family(fam), cid}
		if err := cat.SetLapSamples(key.family, ids[key], lap, telemetry.Series{}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteRun removes a run and all of its data.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	for _, table := range []string{"samples", "channel_laps", "channels", "laps"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete run %s from %s: %w", id, table, err)
		}
	}
	return tx.Commit()
}
