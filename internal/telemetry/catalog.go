// Package telemetry defines the read-only view of a decoded telemetry run:
// channel metadata, lap boundaries and per-lap sample series.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Catalog when a channel, lap or lap-scoped
// series does not exist.
var ErrNotFound = errors.New("not found")

// Family identifies one of the channel families a run exposes.
type Family int

const (
	// FamilyGeneric holds the logger's processed channels.
	FamilyGeneric Family = iota
	// FamilyRaw holds the auxiliary raw channels (e.g. unprocessed GPS).
	FamilyRaw
)

// Families lists every family in selection order.
var Families = []Family{FamilyGeneric, FamilyRaw}

func (f Family) String() string {
	switch f {
	case FamilyGeneric:
		return "generic"
	case FamilyRaw:
		return "raw"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily converts a family name back to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "", "generic":
		return FamilyGeneric, nil
	case "raw":
		return FamilyRaw, nil
	default:
		return 0, fmt.Errorf("unknown channel family %q", s)
	}
}

// Series is a channel's samples for one lap (or the whole run).
// Timestamps are seconds and are expected to be non-decreasing.
type Series struct {
	Timestamps []float64
	Values     []float64
}

// Len returns the number of usable samples. A series whose timestamp and value
// slices disagree is truncated to the shorter of the two.
func (s Series) Len() int {
	return min(len(s.Timestamps), len(s.Values))
}

// Channel is a named, unit-tagged series for one lap.
type Channel struct {
	Name   string
	Unit   string
	Family Family
	Series
}

// Lap describes one lap window of a run. Index is 0-based; Number is the
// logger's own lap number.
type Lap struct {
	Index    int
	Number   int
	Start    float64
	Duration float64
}

// Session holds descriptive run metadata.
type Session struct {
	Date         time.Time
	Driver       string
	Vehicle      string
	Track        string
	Championship string
	VenueType    string
}

// Catalog is the read-only contract a decoded run exposes. Implementations
// return resident data; none of the calls are expected to block on I/O.
type Catalog interface {
	ChannelCount(f Family) int
	ChannelName(f Family, id int) (string, error)
	ChannelUnit(f Family, id int) (string, error)

	LapCount() int
	LapInfo(lap int) (Lap, error)

	// LapChannelSamples returns ErrNotFound when the channel has no data for
	// the lap. Any other error is a load failure.
	LapChannelSamples(f Family, lap, id int) (Series, error)
}

// SessionDescriber is implemented by catalogs that carry run metadata.
type SessionDescriber interface {
	Session() Session
}

// ChannelSampler is implemented by catalogs that can return a channel's
// samples for the whole run.
type ChannelSampler interface {
	ChannelSamples(f Family, id int) (Series, error)
}
