package export

import (
	"errors"
	"fmt"

	"github.com/banshee-data/lapexport/internal/telemetry"
)

// DefaultChannels is used when no channel names are requested: the ECEF
// position triple the logger reports in its raw GPS family.
var DefaultChannels = []string{"ECEF position_X", "ECEF position_Y", "ECEF position_Z"}

// ChannelRef identifies a selected catalog channel.
type ChannelRef struct {
	Family telemetry.Family
	ID     int
	Name   string
	Unit   string
}

// LapChannel is a selected channel's data for one lap. Present is false when
// the catalog has no data for the channel in that lap; its cells are blank.
type LapChannel struct {
	telemetry.Channel
	Present bool
}

// Selection is the run-level outcome of Select.
type Selection struct {
	Refs []ChannelRef
	// Missing lists requested names that matched no channel.
	Missing []string
}

// Selector filters a catalog's channels down to the requested names.
type Selector struct {
	// Desired is matched exactly and case-sensitively. Empty means
	// DefaultChannels.
	Desired []string
}

func (s Selector) desired() []string {
	if len(s.Desired) == 0 {
		return DefaultChannels
	}
	return s.Desired
}

// Select walks the generic family and then the raw family in catalog order
// and keeps every channel whose name is desired. IDs whose metadata is not
// found are skipped.
func (s Selector) Select(cat telemetry.Catalog) (Selection, error) {
	want := make(map[string]bool)
	for _, name := range s.desired() {
		want[name] = true
	}

	var sel Selection
	found := make(map[string]bool)
	for _, fam := range telemetry.Families {
		for id := 0; id < cat.ChannelCount(fam); id++ {
			name, err := cat.ChannelName(fam, id)
			if errors.Is(err, telemetry.ErrNotFound) {
				continue
			}
			if err != nil {
				return Selection{}, &LapError{Lap: -1, Err: fmt.Errorf("%w: %s channel %d name: %w", ErrLoadFailure, fam, id, err)}
			}
			if !want[name] {
				continue
			}
			unit, err := cat.ChannelUnit(fam, id)
			if errors.Is(err, telemetry.ErrNotFound) {
				continue
			}
			if err != nil {
				return Selection{}, &LapError{Lap: -1, Channel: name, Err: fmt.Errorf("%w: unit: %w", ErrLoadFailure, err)}
			}
			sel.Refs = append(sel.Refs, ChannelRef{Family: fam, ID: id, Name: name, Unit: unit})
			found[name] = true
		}
	}

	seen := make(map[string]bool)
	for _, name := range s.desired() {
		if !found[name] && !seen[name] {
			sel.Missing = append(sel.Missing, name)
		}
		seen[name] = true
	}
	return sel, nil
}

// SelectLap loads the lap's samples for every selected channel. A channel
// the catalog reports as not found for this lap is returned absent; any
// other catalog error is a load failure.
func (s Selector) SelectLap(cat telemetry.Catalog, lap int, refs []ChannelRef) ([]LapChannel, error) {
	out := make([]LapChannel, len(refs))
	for i, ref := range refs {
		out[i].Channel = telemetry.Channel{Name: ref.Name, Unit: ref.Unit, Family: ref.Family}

		series, err := cat.LapChannelSamples(ref.Family, lap, ref.ID)
		if errors.Is(err, telemetry.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &LapError{Lap: lap, Channel: ref.Name, Err: fmt.Errorf("%w: %w", ErrLoadFailure, err)}
		}
		out[i].Series = series
		out[i].Present = true
	}
	return out, nil
}
