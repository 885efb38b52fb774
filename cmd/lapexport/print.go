package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
)

func (a *app) jsonOutput() bool { return a.output == "json" }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// lapTime renders seconds as mm:ss.sss, rounding to the millisecond first so
// 59.9996 prints as 01:00.000.
func lapTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		return "-"
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

func formatPreview(vals []float64, prec int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', prec, 64)
	}
	return strings.Join(parts, ", ")
}

func headPreview(vals []float64, n int) []float64 {
	if len(vals) > n {
		return vals[:n]
	}
	return vals
}

// jsonFloat keeps NaN and Inf out of JSON output.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
}

func jsonFloats(vals []float64) []jsonFloat {
	out := make([]jsonFloat, len(vals))
	for i, v := range vals {
		out[i] = jsonFloat(v)
	}
	return out
}
