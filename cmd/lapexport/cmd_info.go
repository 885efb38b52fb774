package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lapexport/internal/telemetry"
)

const previewLen = 3

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show session metadata, lap count and channel counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return a.printInfo(cmd.OutOrStdout(), cat)
		},
	}
}

type infoOutput struct {
	Date         *time.Time     `json:"date,omitempty"`
	Driver       string         `json:"driver"`
	Vehicle      string         `json:"vehicle"`
	Track        string         `json:"track"`
	Championship string         `json:"championship"`
	VenueType    string         `json:"venue_type"`
	Laps         int            `json:"laps"`
	Channels     map[string]int `json:"channels"`
}

func (a *app) printInfo(w io.Writer, cat telemetry.Catalog) error {
	var s telemetry.Session
	if d, ok := cat.(telemetry.SessionDescriber); ok {
		s = d.Session()
	}
	out := infoOutput{
		Driver:       orUnknown(s.Driver),
		Vehicle:      orUnknown(s.Vehicle),
		Track:        orUnknown(s.Track),
		Championship: orUnknown(s.Championship),
		VenueType:    orUnknown(s.VenueType),
		Laps:         cat.LapCount(),
		Channels:     make(map[string]int, len(telemetry.Families)),
	}
	if !s.Date.IsZero() {
		out.Date = &s.Date
	}
	for _, f := range telemetry.Families {
		out.Channels[f.String()] = cat.ChannelCount(f)
	}
	if a.jsonOutput() {
		return printJSON(w, out)
	}

	const rule = "=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-=-="
	date := "Unknown"
	if out.Date != nil {
		date = out.Date.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "%-30s: %s\n", "DATETIME", date)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-30s: %s\n", "DRIVER", out.Driver)
	fmt.Fprintf(w, "%-30s: %s\n", "VEHICLE", out.Vehicle)
	fmt.Fprintf(w, "%-30s: %s\n", "TRACK", out.Track)
	fmt.Fprintf(w, "%-30s: %s / %s\n", "CHAMPIONSHIP", out.Championship, out.VenueType)
	fmt.Fprintf(w, "%-30s: %d\n", "LAPS", out.Laps)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-30s: %d\n", "DATA CHANNELS", out.Channels[telemetry.FamilyGeneric.String()])
	fmt.Fprintf(w, "%-30s: %d\n", "RAW CHANNELS", out.Channels[telemetry.FamilyRaw.String()])
	return nil
}

func newLapsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "laps",
		Short: "List laps with start, duration and lap time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return a.printLaps(cmd.OutOrStdout(), cat)
		},
	}
}

type lapOutput struct {
	Lap      int     `json:"lap"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	LapTime  string  `json:"lap_time"`
}

func (a *app) printLaps(w io.Writer, cat telemetry.Catalog) error {
	laps := make([]lapOutput, 0, cat.LapCount())
	for i := 0; i < cat.LapCount(); i++ {
		info, err := cat.LapInfo(i)
		if err != nil {
			a.logger.Warn().Err(err).Int("lap", i).Msg("skipping lap")
			continue
		}
		laps = append(laps, lapOutput{
			Lap:      info.Number,
			Start:    info.Start,
			Duration: info.Duration,
			LapTime:  lapTime(info.Duration),
		})
	}
	if a.jsonOutput() {
		return printJSON(w, laps)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "LAP\tSTART\tDURATION\tLAP TIME")
	for _, l := range laps {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%s\n", l.Lap, l.Start, l.Duration, l.LapTime)
	}
	return tw.Flush()
}

func newChannelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List channels with sample counts, rates and a data preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return a.printChannels(cmd.OutOrStdout(), cat)
		},
	}
}

type channelOutput struct {
	Name       string      `json:"name"`
	Unit       string      `json:"unit"`
	Family     string      `json:"family"`
	Count      int         `json:"count"`
	Frequency  float64     `json:"frequency_hz"`
	Timestamps []jsonFloat `json:"timestamps"`
	Values     []jsonFloat `json:"values"`
	Min        jsonFloat   `json:"min"`
	Max        jsonFloat   `json:"max"`
	Mean       jsonFloat   `json:"mean"`
}

func describeChannel(name, unit string, f telemetry.Family, s telemetry.Series) channelOutput {
	n := s.Len()
	sum := telemetry.Summarize(s)
	return channelOutput{
		Name:       name,
		Unit:       unit,
		Family:     f.String(),
		Count:      n,
		Frequency:  telemetry.SampleRate(s.Timestamps[:n]),
		Timestamps: jsonFloats(headPreview(s.Timestamps[:n], previewLen)),
		Values:     jsonFloats(headPreview(s.Values[:n], previewLen)),
		Min:        jsonFloat(sum.Min),
		Max:        jsonFloat(sum.Max),
		Mean:       jsonFloat(sum.Mean),
	}
}

// wholeRun returns a channel's samples across every lap.
func wholeRun(cat telemetry.Catalog, f telemetry.Family, id int) (telemetry.Series, error) {
	if cs, ok := cat.(telemetry.ChannelSampler); ok {
		return cs.ChannelSamples(f, id)
	}
	var out telemetry.Series
	for lap := 0; lap < cat.LapCount(); lap++ {
		s, err := cat.LapChannelSamples(f, lap, id)
		if errors.Is(err, telemetry.ErrNotFound) {
			continue
		}
		if err != nil {
			return telemetry.Series{}, err
		}
		n := s.Len()
		out.Timestamps = append(out.Timestamps, s.Timestamps[:n]...)
		out.Values = append(out.Values, s.Values[:n]...)
	}
	return out, nil
}

func (a *app) printChannels(w io.Writer, cat telemetry.Catalog) error {
	var chans []channelOutput
	for _, f := range telemetry.Families {
		for id := 0; id < cat.ChannelCount(f); id++ {
			name, err := cat.ChannelName(f, id)
			if err != nil {
				return err
			}
			unit, err := cat.ChannelUnit(f, id)
			if err != nil {
				return err
			}
			s, err := wholeRun(cat, f, id)
			if err != nil {
				return fmt.Errorf("channel %q: %w", name, err)
			}
			chans = append(chans, describeChannel(name, unit, f, s))
		}
	}
	if a.jsonOutput() {
		if chans == nil {
			chans = []channelOutput{}
		}
		return printJSON(w, chans)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "CHANNEL\tUNIT\tFAMILY\tCOUNT\tFREQ (HZ)\tPREVIEW (TIMESTAMPS)\tPREVIEW (DATA)")
	for _, c := range chans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%g\t%s\t%s\n",
			c.Name, c.Unit, c.Family, c.Count, c.Frequency,
			previewString(c.Timestamps, 3), previewString(c.Values, -1))
	}
	return tw.Flush()
}

func previewString(vals []jsonFloat, prec int) string {
	raw := make([]float64, len(vals))
	for i, v := range vals {
		raw[i] = float64(v)
	}
	return formatPreview(raw, prec)
}

func newLapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lap <n>",
		Short: "Preview every channel's samples for one lap (1-based)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid lap %q: %w", args[0], err)
			}
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if n < 1 || n > cat.LapCount() {
				return fmt.Errorf("lap %d out of range (run has %d laps)", n, cat.LapCount())
			}
			return a.printLap(cmd.OutOrStdout(), cat, n-1)
		},
	}
}

type lapChannelOutput struct {
	Lap     int  `json:"lap"`
	Present bool `json:"present"`
	channelOutput
}

func (a *app) printLap(w io.Writer, cat telemetry.Catalog, lap int) error {
	var chans []lapChannelOutput
	for _, f := range telemetry.Families {
		for id := 0; id < cat.ChannelCount(f); id++ {
			name, err := cat.ChannelName(f, id)
			if err != nil {
				return err
			}
			unit, err := cat.ChannelUnit(f, id)
			if err != nil {
				return err
			}
			s, err := cat.LapChannelSamples(f, lap, id)
			present := err == nil
			if err != nil && !errors.Is(err, telemetry.ErrNotFound) {
				return fmt.Errorf("lap %d: channel %q: %w", lap+1, name, err)
			}
			chans = append(chans, lapChannelOutput{
				Lap:           lap + 1,
				Present:       present,
				channelOutput: describeChannel(name, unit, f, s),
			})
		}
	}
	if a.jsonOutput() {
		if chans == nil {
			chans = []lapChannelOutput{}
		}
		return printJSON(w, chans)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "LAP\tCHANNEL\tUNIT\tCOUNT\tPREVIEW (TIMESTAMPS)\tPREVIEW (DATA)")
	for _, c := range chans {
		count := strconv.Itoa(c.Count)
		if !c.Present {
			count = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Lap, c.Name, c.Unit, count,
			previewString(c.Timestamps, 3), previewString(c.Values, -1))
	}
	return tw.Flush()
}
