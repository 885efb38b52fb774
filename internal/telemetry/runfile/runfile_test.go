package runfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lapexport/internal/fsutil"
	"github.com/banshee-data/lapexport/internal/telemetry"
)

const sampleRun = `{
  "session": {"date": "2024-05-01T10:00:00Z", "driver": "A. Driver", "vehicle": "GT4", "track": "Ring"},
  "laps": [
    {"number": 3, "start": 0, "duration": 92.4},
    {"start": 92.4, "duration": 90.1}
  ],
  "channels": [
    {"name": "Speed", "unit": "km/h", "laps": [
      {"lap": 1, "timestamps": [0, 0.5], "values": [10, 20]},
      {"lap": 2, "timestamps": [92.4], "values": [30]}
    ]},
    {"name": "ECEF position_X", "unit": "m", "family": "raw", "laps": [
      {"lap": 2, "timestamps": [92.4, 92.5], "values": [4510000.25, 4510001.5]}
    ]}
  ]
}`

func TestLoad(t *testing.T) {
	t.Parallel()
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/runs/a.json", []byte(sampleRun))

	cat, err := Load(fsys, "/runs/a.json")
	require.NoError(t, err)

	s := cat.Session()
	assert.Equal(t, "A. Driver", s.Driver)
	assert.Equal(t, "GT4", s.Vehicle)
	assert.True(t, s.Date.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	require.Equal(t, 2, cat.LapCount())
	lap, err := cat.LapInfo(0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.Lap{Index: 0, Number: 3, Start: 0, Duration: 92.4}, lap)
	lap, err = cat.LapInfo(1)
	require.NoError(t, err)
	assert.Equal(t, 2, lap.Number)

	assert.Equal(t, 1, cat.ChannelCount(telemetry.FamilyGeneric))
	assert.Equal(t, 1, cat.ChannelCount(telemetry.FamilyRaw))

	_, err = cat.LapChannelSamples(telemetry.FamilyRaw, 0, 0)
	assert.ErrorIs(t, err, telemetry.ErrNotFound)
	got, err := cat.LapChannelSamples(telemetry.FamilyRaw, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{4510000.25, 4510001.5}, got.Values)
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := Load(fsutil.NewMemoryFileSystem(), "/nope.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nope.json")
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"syntax":         `{"laps": [`,
		"unknown field":  `{"lapz": []}`,
		"unknown family": `{"laps": [{"start": 0, "duration": 1}], "channels": [{"name": "X", "family": "cooked", "laps": []}]}`,
		"lap range":      `{"laps": [{"start": 0, "duration": 1}], "channels": [{"name": "X", "laps": [{"lap": 2, "timestamps": [], "values": []}]}]}`,
		"lap zero":       `{"laps": [{"start": 0, "duration": 1}], "channels": [{"name": "X", "laps": [{"lap": 0, "timestamps": [], "values": []}]}]}`,
		"no name":        `{"channels": [{"unit": "m", "laps": []}]}`,
		"negative lap":   `{"laps": [{"start": 0, "duration": -1}]}`,
	}
	for name, doc := range cases {
		_, err := Decode(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestDecode_DuplicateNamesKept(t *testing.T) {
	t.Parallel()
	doc := `{"laps": [{"start": 0, "duration": 1}], "channels": [
		{"name": "X", "unit": "a", "laps": []},
		{"name": "X", "unit": "b", "laps": []}
	]}`
	cat, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, cat.ChannelCount(telemetry.FamilyGeneric))
}

type brokenCatalog struct {
	*telemetry.MemoryCatalog
}

var errBroken = errors.New("broken")

func (brokenCatalog) LapChannelSamples(telemetry.Family, int, int) (telemetry.Series, error) {
	return telemetry.Series{}, errBroken
}

func TestFromCatalog_RoundTrip(t *testing.T) {
	t.Parallel()
	cat, err := Decode(strings.NewReader(sampleRun))
	require.NoError(t, err)

	f, err := FromCatalog(cat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, f))

	again, err := Decode(&buf)
	require.NoError(t, err)
	f2, err := FromCatalog(again)
	require.NoError(t, err)

	if diff := cmp.Diff(f, f2); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
	assert.Equal(t, "generic", f.Channels[0].Family)
	assert.Equal(t, "raw", f.Channels[1].Family)
	require.Len(t, f.Channels[1].Laps, 1)
	assert.Equal(t, 2, f.Channels[1].Laps[0].Lap)

	_, err = FromCatalog(brokenCatalog{cat})
	assert.ErrorIs(t, err, errBroken)
}
