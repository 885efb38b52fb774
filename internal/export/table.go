package export

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/lapexport/internal/telemetry"
)

// ColumnKind distinguishes the fixed prefix columns from per-channel ones.
type ColumnKind int

const (
	ColumnLap ColumnKind = iota
	ColumnTime
	ColumnValue
	ColumnUnit
)

// UnitSuffix is appended to a channel name to form its unit column.
const UnitSuffix = "_UNIT"

// Column describes one header field.
type Column struct {
	Name string
	Kind ColumnKind
	// Channel is the index into the selected channels, or -1 for the prefix.
	Channel int
}

// HeaderNames returns the column names in order.
func HeaderNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// TableBuilder lays out the header and renders aligned rows.
type TableBuilder struct {
	// IncludeUnits adds a <name>_UNIT column after each value column.
	IncludeUnits bool
}

// Header returns lap, then time when timed, then one or two columns per
// channel. Its length is always 1 + timed + len(refs) * (1 or 2).
func (b TableBuilder) Header(refs []ChannelRef, timed bool) []Column {
	cols := []Column{{Name: "lap", Kind: ColumnLap, Channel: -1}}
	if timed {
		cols = append(cols, Column{Name: "time", Kind: ColumnTime, Channel: -1})
	}
	for i, ref := range refs {
		cols = append(cols, Column{Name: ref.Name, Kind: ColumnValue, Channel: i})
		if b.IncludeUnits {
			cols = append(cols, Column{Name: ref.Name + UnitSuffix, Kind: ColumnUnit, Channel: i})
		}
	}
	return cols
}

// Table is one lap's rendered export: the header plus aligned rows.
type Table struct {
	Lap     telemetry.Lap
	Columns []Column
	units   []string
	rows    []Row
}

// Build pairs an alignment with its header. Every row must carry one cell per
// channel.
func (b TableBuilder) Build(lap telemetry.Lap, chs []LapChannel, a Alignment) (*Table, error) {
	refs := make([]ChannelRef, len(chs))
	units := make([]string, len(chs))
	for i, ch := range chs {
		refs[i] = ChannelRef{Family: ch.Family, Name: ch.Name, Unit: ch.Unit}
		units[i] = ch.Unit
	}
	for _, row := range a.Rows {
		if len(row.Cells) != len(chs) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", row.Position, len(row.Cells), len(chs))
		}
	}
	return &Table{
		Lap:     lap,
		Columns: b.Header(refs, a.Timed),
		units:   units,
		rows:    a.Rows,
	}, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Each renders rows in order. The slice passed to fn is reused between
// calls; fn must not retain it.
func (t *Table) Each(fn func(fields []string) error) error {
	lap := strconv.Itoa(t.Lap.Index + 1)
	fields := make([]string, len(t.Columns))
	for _, row := range t.rows {
		for i, col := range t.Columns {
			switch col.Kind {
			case ColumnLap:
				fields[i] = lap
			case ColumnTime:
				fields[i] = FormatTime(row.Time)
			case ColumnValue:
				fields[i] = FormatCell(row.Cells[col.Channel])
			case ColumnUnit:
				fields[i] = ""
				if row.Cells[col.Channel].Valid {
					fields[i] = t.units[col.Channel]
				}
			}
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
	return nil
}

// FormatTime renders a timestamp in seconds with millisecond precision.
func FormatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', 3, 64)
}

// FormatCell renders a value as its shortest decimal form, or an empty string
// when the cell is invalid.
func FormatCell(c Cell) string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}
