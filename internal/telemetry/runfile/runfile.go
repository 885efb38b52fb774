// Package runfile loads a decoded telemetry run from its JSON dump.
//
// A run file looks like:
//
//	{
//	  "session": {"date": "2024-05-01T10:00:00Z", "driver": "A. Driver", "track": "Ring"},
//	  "laps": [{"number": 1, "start": 0, "duration": 92.4}],
//	  "channels": [
//	    {"name": "Speed", "unit": "km/h", "family": "generic",
//	     "laps": [{"lap": 1, "timestamps": [0, 0.1], "values": [0, 3.2]}]}
//	  ]
//	}
//
// Lap references inside channels are 1-based positions in the laps array.
package runfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/telemetry"
)

// File is the JSON document.
type File struct {
	Session  Session   `json:"session"`
	Laps     []Lap     `json:"laps"`
	Channels []Channel `json:"channels"`
}

type Session struct {
	Date         *time.Time `json:"date,omitempty"`
	Driver       string     `json:"driver,omitempty"`
	Vehicle      string     `json:"vehicle,omitempty"`
	Track        string     `json:"track,omitempty"`
	Championship string     `json:"championship,omitempty"`
	VenueType    string     `json:"venue_type,omitempty"`
}

type Lap struct {
	Number   int     `json:"number,omitempty"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type Channel struct {
	Name   string       `json:"name"`
	Unit   string       `json:"unit,omitempty"`
	Family string       `json:"family,omitempty"`
	Laps   []LapSamples `json:"laps"`
}

type LapSamples struct {
	Lap        int       `json:"lap"`
	Timestamps []float64 `json:"timestamps"`
	Values     []float64 `json:"values"`
}

// Load reads path from fsys and materialises it as a catalog.
func Load(fsys fsutil.FileSystem, path string) (*telemetry.MemoryCatalog, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file %s: %w", path, err)
	}
	cat, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("run file %s: %w", path, err)
	}
	return cat, nil
}

// Decode parses a run document from r.
func Decode(r io.Reader) (*telemetry.MemoryCatalog, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse run JSON: %w", err)
	}
	return f.Catalog()
}

// Catalog validates f and converts it.
func (f *File) Catalog() (*telemetry.MemoryCatalog, error) {
	cat := telemetry.NewMemoryCatalog()

	s := telemetry.Session{
		Driver:       f.Session.Driver,
		Vehicle:      f.Session.Vehicle,
		Track:        f.Session.Track,
		Championship: f.Session.Championship,
		VenueType:    f.Session.VenueType,
	}
	if f.Session.Date != nil {
		s.Date = *f.Session.Date
	}
	cat.SetSession(s)

	for i, lap := range f.Laps {
		if lap.Duration < 0 {
			return nil, fmt.Errorf("lap %d: negative duration %v", i+1, lap.Duration)
		}
		cat.AddLap(telemetry.Lap{Number: lap.Number, Start: lap.Start, Duration: lap.Duration})
	}

	for ci, ch := range f.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("channel %d: missing name", ci)
		}
		fam, err := telemetry.ParseFamily(ch.Family)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		id := cat.AddChannel(fam, ch.Name, ch.Unit)
		for _, ls := range ch.Laps {
			if ls.Lap < 1 || ls.Lap > len(f.Laps) {
				return nil, fmt.Errorf("channel %q: lap %d out of range 1..%d", ch.Name, ls.Lap, len(f.Laps))
			}
			series := telemetry.Series{Timestamps: ls.Timestamps, Values: ls.Values}
			if err := cat.SetLapSamples(fam, id, ls.Lap-1, series); err != nil {
				return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
	}
	return cat, nil
}

// FromCatalog dumps any catalog into the run document form.
func FromCatalog(cat telemetry.Catalog) (*File, error) {
	f := &File{}
	if sd, ok := cat.(telemetry.SessionDescriber); ok {
		s := sd.Session()
		f.Session = Session{
			Driver:       s.Driver,
			Vehicle:      s.Vehicle,
			Track:        s.Track,
			Championship: s.Championship,
			VenueType:    s.VenueType,
		}
		if !s.Date.IsZero() {
			d := s.Date
			f.Session.Date = &d
		}
	}

	for i := 0; i < cat.LapCount(); i++ {
		lap, err := cat.LapInfo(i)
		if err != nil {
			return nil, fmt.Errorf("lap %d: %w", i+1, err)
		}
		f.Laps = append(f.Laps, Lap{Number: lap.Number, Start: lap.Start, Duration: lap.Duration})
	}

	for _, fam := range telemetry.Families {
		for id := 0; id < cat.ChannelCount(fam); id++ {
			name, err := cat.ChannelName(fam, id)
			if err != nil {
				return nil, fmt.Errorf("%s channel %d: %w", fam, id, err)
			}
			unit, err := cat.ChannelUnit(fam, id)
			if err != nil {
				return nil, fmt.Errorf("%s channel %q: %w", fam, name, err)
			}
			ch := Channel{Name: name, Unit: unit, Family: fam.String(), Laps: []LapSamples{}}
			for lap := 0; lap < cat.LapCount(); lap++ {
				s, err := cat.LapChannelSamples(fam, lap, id)
				if errors.Is(err, telemetry.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("%s channel %q lap %d: %w", fam, name, lap+1, err)
				}
				n := s.Len()
				ch.Laps = append(ch.Laps, LapSamples{Lap: lap + 1, Timestamps: s.Timestamps[:n], Values: s.Values[:n]})
			}
			f.Channels = append(f.Channels, ch)
		}
	}
	return f, nil
}

// Encode writes f as indented JSON.
func Encode(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode run JSON: %w", err)
	}
	return nil
}
