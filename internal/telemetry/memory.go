package telemetry

import (
	"fmt"
	"sync"
)

// MemoryCatalog is a resident Catalog. Run files and the SQLite store both
// materialise into one, and tests build them directly.
type MemoryCatalog struct {
	mu       sync.RWMutex
	session  Session
	laps     []Lap
	channels map[Family][]memChannel
}

type memChannel struct {
	name string
	unit string
	laps map[int]Series
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{channels: make(map[Family][]memChannel)}
}

// SetSession replaces the run metadata.
func (c *MemoryCatalog) SetSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Session implements SessionDescriber.
func (c *MemoryCatalog) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// AddLap appends a lap and returns it with its Index assigned. A zero Number
// defaults to Index+1.
func (c *MemoryCatalog) AddLap(lap Lap) Lap {
	c.mu.Lock()
	defer c.mu.Unlock()
	lap.Index = len(c.laps)
	if lap.Number == 0 {
		lap.Number = lap.Index + 1
	}
	c.laps = append(c.laps, lap)
	return lap
}

// AddChannel registers a channel in a family and returns its ID.
func (c *MemoryCatalog) AddChannel(f Family, name, unit string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[f] = append(c.channels[f], memChannel{
		name: name,
		unit: unit,
		laps: make(map[int]Series),
	})
	return len(c.channels[f]) - 1
}

// SetLapSamples stores a channel's series for one lap. The slices are kept by
// reference.
func (c *MemoryCatalog) SetLapSamples(f Family, id, lap int, s Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	chans := c.channels[f]
	if id < 0 || id >= len(chans) {
		return fmt.Errorf("%s channel %d: %w", f, id, ErrNotFound)
	}
	if lap < 0 || lap >= len(c.laps) {
		return fmt.Errorf("lap %d: %w", lap, ErrNotFound)
	}
	chans[id].laps[lap] = s
	return nil
}

// ChannelCount implements Catalog.
func (c *MemoryCatalog) ChannelCount(f Family) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels[f])
}

// ChannelName implements Catalog.
func (c *MemoryCatalog) ChannelName(f Family, id int) (string, error) {
	ch, err := c.channel(f, id)
	if err != nil {
		return "", err
	}
	return ch.name, nil
}

// ChannelUnit implements Catalog.
func (c *MemoryCatalog) ChannelUnit(f Family, id int) (string, error) {
	ch, err := c.channel(f, id)
	if err != nil {
		return "", err
	}
	return ch.unit, nil
}

// LapCount implements Catalog.
func (c *MemoryCatalog) LapCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.laps)
}

// LapInfo implements Catalog.
func (c *MemoryCatalog) LapInfo(lap int) (Lap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if lap < 0 || lap >= len(c.laps) {
		return Lap{}, fmt.Errorf("lap %d: %w", lap, ErrNotFound)
	}
	return c.laps[lap], nil
}

// LapChannelSamples implements Catalog.
func (c *MemoryCatalog) LapChannelSamples(f Family, lap, id int) (Series, error) {
	ch, err := c.channel(f, id)
	if err != nil {
		return Series{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := ch.laps[lap]
	if !ok {
		return Series{}, fmt.Errorf("%s channel %q lap %d: %w", f, ch.name, lap, ErrNotFound)
	}
	return s, nil
}

// ChannelSamples implements ChannelSampler by concatenating the channel's
// lap series in lap order.
func (c *MemoryCatalog) ChannelSamples(f Family, id int) (Series, error) {
	ch, err := c.channel(f, id)
	if err != nil {
		return Series{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out Series
	for lap := range c.laps {
		s, ok := ch.laps[lap]
		if !ok {
			continue
		}
		n := s.Len()
		out.Timestamps = append(out.Timestamps, s.Timestamps[:n]...)
		out.Values = append(out.Values, s.Values[:n]...)
	}
	return out, nil
}

func (c *MemoryCatalog) channel(f Family, id int) (memChannel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chans := c.channels[f]
	if id < 0 || id >= len(chans) {
		return memChannel{}, fmt.Errorf("%s channel %d: %w", f, id, ErrNotFound)
	}
	return chans[id], nil
}
