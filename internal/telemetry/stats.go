package telemetry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SampleRate estimates a channel's frequency in Hz as the reciprocal of the
// mean sample interval, rounded to the nearest integer. Fewer than two
// samples, or a non-positive mean interval, yields 0.
func SampleRate(timestamps []float64) float64 {
	if len(timestamps) < 2 {
		return 0
	}
	intervals := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals[i-1] = timestamps[i] - timestamps[i-1]
	}
	mean := stat.Mean(intervals, nil)
	if mean <= 0 || math.IsNaN(mean) {
		return 0
	}
	return math.Round(1 / mean)
}

// Summary is a min/max/mean digest of a series' values.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Summarize digests the usable values of s.
func Summarize(s Series) Summary {
	n := s.Len()
	if n == 0 {
		return Summary{}
	}
	vals := s.Values[:n]
	return Summary{
		Count: n,
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
		Mean:  stat.Mean(vals, nil),
	}
}
