package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleRate(t *testing.T) {
	tests := []struct {
		name string
		ts   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{1}, 0},
		{"20Hz", []float64{0, 0.05, 0.1, 0.15, 0.2}, 20},
		{"irregular rounds", []float64{0, 0.09, 0.21, 0.3}, 10},
		{"flat", []float64{1, 1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleRate(tt.ts))
		})
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(Series{
		Timestamps: []float64{0, 1, 2, 3},
		Values:     []float64{4, -2, 10},
	})
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, -2.0, got.Min)
	assert.Equal(t, 10.0, got.Max)
	assert.InDelta(t, 4.0, got.Mean, 1e-12)

	assert.Equal(t, Summary{}, Summarize(Series{}))
}
