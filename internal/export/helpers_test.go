package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapexport/internal/telemetry"
)

func present(name string, ts, vs []float64) LapChannel {
	return LapChannel{
		Channel: telemetry.Channel{Name: name, Series: telemetry.Series{Timestamps: ts, Values: vs}},
		Present: true,
	}
}

func absent(name string) LapChannel {
	return LapChannel{Channel: telemetry.Channel{Name: name}}
}

// lapData is one channel's samples keyed by 0-based lap index.
type lapData map[int]telemetry.Series

type testChannel struct {
	family telemetry.Family
	name   string
	unit   string
	laps   lapData
}

func newCatalog(t *testing.T, laps int, chans ...testChannel) *telemetry.MemoryCatalog {
	t.Helper()
	cat := telemetry.NewMemoryCatalog()
	for i := 0; i < laps; i++ {
		cat.AddLap(telemetry.Lap{Start: float64(i) * 100, Duration: 100})
	}
	for _, ch := range chans {
		id := cat.AddChannel(ch.family, ch.name, ch.unit)
		for lap, s := range ch.laps {
			require.NoError(t, cat.SetLapSamples(ch.family, id, lap, s))
		}
	}
	return cat
}

func series(ts, vs []float64) telemetry.Series {
	return telemetry.Series{Timestamps: ts, Values: vs}
}

func runExport(t *testing.T, cat telemetry.Catalog, opts Options) (string, Result, error) {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, ',')
	require.NoError(t, err)
	res, err := e.Export(context.Background(), cat, w)
	return buf.String(), res, err
}

// faultyCatalog wraps a catalog and fails chosen calls.
type faultyCatalog struct {
	telemetry.Catalog
	nameErr    error
	lapInfoErr map[int]error
	samplesErr map[int]error
}

func (c faultyCatalog) ChannelName(f telemetry.Family, id int) (string, error) {
	if c.nameErr != nil {
		return "", c.nameErr
	}
	return c.Catalog.ChannelName(f, id)
}

func (c faultyCatalog) LapInfo(lap int) (telemetry.Lap, error) {
	if err := c.lapInfoErr[lap]; err != nil {
		return telemetry.Lap{}, err
	}
	return c.Catalog.LapInfo(lap)
}

func (c faultyCatalog) LapChannelSamples(f telemetry.Family, lap, id int) (telemetry.Series, error) {
	if err := c.samplesErr[lap]; err != nil {
		return telemetry.Series{}, err
	}
	return c.Catalog.LapChannelSamples(f, lap, id)
}

var errDisk = errors.New("disk on fire")

// failingWriter accepts limit bytes and then fails every write.
type failingWriter struct {
	limit int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errDisk
	}
	w.n += len(p)
	return len(p), nil
}
