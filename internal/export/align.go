package export

import (
	"fmt"
	"math"
	"sort"
)

// Mode names an alignment strategy.
type Mode string

const (
	// ModeNearest uses a master channel's timestamps as the row axis.
	ModeNearest Mode = "nearest"
	// ModeUnion uses every distinct timestamp of every channel.
	ModeUnion Mode = "union"
	// ModePositional uses sample positions and discards time.
	ModePositional Mode = "positional"
)

// Modes lists the valid modes.
var Modes = []Mode{ModeNearest, ModeUnion, ModePositional}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown alignment mode %q (want nearest, union or positional)", s)
}

const (
	// DefaultMaster is the channel whose timestamps define rows in nearest mode.
	DefaultMaster = "ECEF position_X"
	// DefaultTolerance is the union-mode timestamp match window, in seconds.
	DefaultTolerance = 1e-6
	// DefaultScanLimit is the channel length above which nearest mode
	// switches from a linear scan to binary search.
	DefaultScanLimit = 256
)

// Cell is one aligned value. An invalid cell is written as an empty field.
type Cell struct {
	Value float64
	Valid bool
}

// Row is one position on the shared row axis with a cell per channel, in
// channel order. Time is meaningless for untimed alignments.
type Row struct {
	Position int
	Time     float64
	Cells    []Cell
}

// Alignment is a strategy's output for one lap.
type Alignment struct {
	Timed bool
	Rows  []Row
}

// Strategy reconciles one lap's channels onto a single row axis.
type Strategy interface {
	Mode() Mode
	// Timed reports whether rows carry a meaningful timestamp.
	Timed() bool
	Align(chs []LapChannel) (Alignment, error)
}

// StrategyConfig selects and parameterises a Strategy.
type StrategyConfig struct {
	Mode      Mode
	Master    string
	Tolerance float64
	ScanLimit int
}

// NewStrategy builds the strategy cfg names. Zero values take the package
// defaults; the mode defaults to nearest.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	switch cfg.Mode {
	case "", ModeNearest:
		master := cfg.Master
		if master == "" {
			master = DefaultMaster
		}
		limit := cfg.ScanLimit
		if limit <= 0 {
			limit = DefaultScanLimit
		}
		return NearestStrategy{Master: master, ScanLimit: limit}, nil
	case ModeUnion:
		tol := cfg.Tolerance
		if tol < 0 || math.IsNaN(tol) || math.IsInf(tol, 0) {
			return nil, fmt.Errorf("union tolerance must be a finite non-negative number, got %v", tol)
		}
		return UnionStrategy{Tolerance: tol}, nil
	case ModePositional:
		return PositionalStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown alignment mode %q", cfg.Mode)
	}
}

// validateTimestamps rejects NaN, infinite and decreasing timestamps in the
// usable part of every present channel.
func validateTimestamps(chs []LapChannel) error {
	for _, ch := range chs {
		if !ch.Present {
			continue
		}
		ts := ch.Timestamps[:ch.Len()]
		for i, t := range ts {
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return &channelError{channel: ch.Name, err: fmt.Errorf("%w: sample %d is %v", ErrInvalidTimestamp, i, t)}
			}
			if i > 0 && t < ts[i-1] {
				return &channelError{channel: ch.Name, err: fmt.Errorf("%w: sample %d (%v) precedes sample %d (%v)", ErrInvalidTimestamp, i, t, i-1, ts[i-1])}
			}
		}
	}
	return nil
}

// newRows allocates n rows of width cells backed by one slice.
func newRows(n, width int) []Row {
	rows := make([]Row, n)
	cells := make([]Cell, n*width)
	for r := range rows {
		rows[r].Position = r
		rows[r].Cells = cells[r*width : (r+1)*width : (r+1)*width]
	}
	return rows
}

func anyPresent(chs []LapChannel) bool {
	for _, ch := range chs {
		if ch.Present {
			return true
		}
	}
	return false
}

// NearestStrategy aligns every channel onto the master channel's timestamps,
// taking for each master time the sample with the smallest absolute time
// difference. Ties go to the earliest sample in ascending-timestamp order,
// so a sample before the master time beats an equidistant one after it.
type NearestStrategy struct {
	Master string
	// ScanLimit is the largest channel length searched linearly; longer
	// channels use binary search. Both paths pick the same sample.
	ScanLimit int
}

func (NearestStrategy) Mode() Mode  { return ModeNearest }
func (NearestStrategy) Timed() bool { return true }

// Align implements Strategy. A lap with no present channels aligns to zero
// rows; a lap with channels but no master fails with ErrMasterChannelMissing.
func (s NearestStrategy) Align(chs []LapChannel) (Alignment, error) {
	if err := validateTimestamps(chs); err != nil {
		return Alignment{}, err
	}
	if !anyPresent(chs) {
		return Alignment{Timed: true}, nil
	}

	master := -1
	for i, ch := range chs {
		if ch.Present && ch.Name == s.Master {
			master = i
			break
		}
	}
	if master < 0 {
		return Alignment{}, &channelError{channel: s.Master, err: ErrMasterChannelMissing}
	}

	axis := chs[master].Timestamps[:chs[master].Len()]
	rows := newRows(len(axis), len(chs))
	for r, t := range axis {
		rows[r].Time = t
	}

	for ci, ch := range chs {
		n := ch.Len()
		if !ch.Present || n == 0 {
			continue
		}
		if ci == master {
			for r := range rows {
				rows[r].Cells[ci] = Cell{Value: ch.Values[r], Valid: true}
			}
			continue
		}
		ts := ch.Timestamps[:n]
		pick := nearestSorted
		if n <= s.ScanLimit {
			pick = nearestLinear
		}
		for r, t := range axis {
			rows[r].Cells[ci] = Cell{Value: ch.Values[pick(ts, t)], Valid: true}
		}
	}
	return Alignment{Timed: true, Rows: rows}, nil
}

// nearestLinear returns the index of the first sample with the minimum
// distance to t. ts must be non-empty.
func nearestLinear(ts []float64, t float64) int {
	best, bestDist := 0, math.Abs(ts[0]-t)
	for j := 1; j < len(ts); j++ {
		if d := math.Abs(ts[j] - t); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// nearestSorted returns the same index as nearestLinear using binary search
// over sorted ts. Distances fall monotonically up to t and rise after it, so
// the first minimum is the earliest left-side sample at the left distance,
// or the first sample at or after t when that is strictly closer.
func nearestSorted(ts []float64, t float64) int {
	i := sort.SearchFloat64s(ts, t)
	if i == 0 {
		return 0
	}
	left := math.Abs(ts[i-1] - t)
	if i < len(ts) && math.Abs(ts[i]-t) < left {
		return i
	}
	return sort.Search(i, func(j int) bool { return math.Abs(ts[j]-t) <= left })
}

// UnionStrategy emits a row for every distinct timestamp across the lap's
// channels. Timestamps are grouped into clusters anchored at their smallest
// member: a timestamp joins the cluster if it lies within Tolerance of the
// anchor, so clusters never chain. The row time is the anchor, and each
// channel contributes its first sample inside the cluster. A zero Tolerance
// requires bit-identical timestamps.
type UnionStrategy struct {
	Tolerance float64
}

func (UnionStrategy) Mode() Mode  { return ModeUnion }
func (UnionStrategy) Timed() bool { return true }

type stamp struct {
	t   float64
	ch  int
	idx int
}

// Align implements Strategy.
func (s UnionStrategy) Align(chs []LapChannel) (Alignment, error) {
	if err := validateTimestamps(chs); err != nil {
		return Alignment{}, err
	}

	var stamps []stamp
	for ci, ch := range chs {
		if !ch.Present {
			continue
		}
		for i, t := range ch.Timestamps[:ch.Len()] {
			stamps = append(stamps, stamp{t: t, ch: ci, idx: i})
		}
	}
	// Stable keeps channel order, then sample order, among equal times.
	sort.SliceStable(stamps, func(a, b int) bool { return stamps[a].t < stamps[b].t })

	var rows []Row
	for i := 0; i < len(stamps); {
		anchor := stamps[i].t
		row := Row{Position: len(rows), Time: anchor, Cells: make([]Cell, len(chs))}
		contributed := 0
		for ; i < len(stamps) && stamps[i].t-anchor <= s.Tolerance; i++ {
			st := stamps[i]
			if row.Cells[st.ch].Valid {
				continue
			}
			row.Cells[st.ch] = Cell{Value: chs[st.ch].Values[st.idx], Valid: true}
			contributed++
		}
		if contributed > 0 {
			rows = append(rows, row)
		}
	}
	return Alignment{Timed: true, Rows: rows}, nil
}

// PositionalStrategy indexes rows by sample position: row k holds each
// channel's k-th sample. Timestamps are validated but otherwise discarded.
//
// Deprecated: positional rows carry no temporal meaning. It exists only to
// reproduce the layout of older exports; use ModeNearest or ModeUnion.
type PositionalStrategy struct{}

func (PositionalStrategy) Mode() Mode  { return ModePositional }
func (PositionalStrategy) Timed() bool { return false }

// Align implements Strategy.
func (PositionalStrategy) Align(chs []LapChannel) (Alignment, error) {
	if err := validateTimestamps(chs); err != nil {
		return Alignment{}, err
	}
	n := 0
	for _, ch := range chs {
		if ch.Present {
			n = max(n, ch.Len())
		}
	}
	rows := newRows(n, len(chs))
	for ci, ch := range chs {
		if !ch.Present {
			continue
		}
		for k := 0; k < ch.Len(); k++ {
			rows[k].Cells[ci] = Cell{Value: ch.Values[k], Valid: true}
		}
	}
	return Alignment{Timed: false, Rows: rows}, nil
}
