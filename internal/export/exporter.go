package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lapexport/internal/monitoring"
	"github.com/banshee-data/lapexport/internal/telemetry"
	"github.com/banshee-data/lapexport/internal/timeutil"
)

// Options configures an Exporter. The zero value exports DefaultChannels with
// nearest alignment on DefaultMaster, sequentially.
type Options struct {
	Channels     []string
	Strategy     StrategyConfig
	IncludeUnits bool

	// Workers above 1 prepares laps concurrently. Output order and content
	// are identical to the sequential path.
	Workers int

	// Logger defaults to a no-op logger.
	Logger  *zerolog.Logger
	Metrics *monitoring.ExportMetrics
	Clock   timeutil.Clock
}

// Result summarises an export. On failure it holds the counts reached
// before the error.
type Result struct {
	ID       string
	Laps     int
	Rows     int
	Columns  int
	Channels []ChannelRef
	Missing  []string
	Elapsed  time.Duration
}

// Exporter runs the per-lap pipeline over a catalog.
type Exporter struct {
	selector Selector
	strategy Strategy
	builder  TableBuilder
	workers  int
	log      zerolog.Logger
	metrics  *monitoring.ExportMetrics
	clock    timeutil.Clock
}

// New validates opts and returns an Exporter.
func New(opts Options) (*Exporter, error) {
	strategy, err := NewStrategy(opts.Strategy)
	if err != nil {
		return nil, err
	}
	e := &Exporter{
		selector: Selector{Desired: opts.Channels},
		strategy: strategy,
		builder:  TableBuilder{IncludeUnits: opts.IncludeUnits},
		workers:  opts.Workers,
		log:      zerolog.Nop(),
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	return e, nil
}

// Strategy returns the configured alignment strategy.
func (e *Exporter) Strategy() Strategy { return e.strategy }

type lapResult struct {
	table *Table
	err   error
}

// Export writes the header, then every lap's table in lap order, then
// flushes w once. The first fatal error stops the export and is returned;
// the caller must then discard whatever reached the sink.
func (e *Exporter) Export(ctx context.Context, cat telemetry.Catalog, w *Writer) (Result, error) {
	res := Result{ID: uuid.NewString()}
	log := e.log.With().Str("export_id", res.ID).Str("mode", string(e.strategy.Mode())).Logger()
	start := e.clock.Now()

	fail := func(err error) (Result, error) {
		res.Elapsed = e.clock.Since(start)
		e.metrics.ExportFailed(FailureReason(err))
		log.Error().Err(err).Int("laps", res.Laps).Int("rows", res.Rows).Msg("export failed")
		return res, err
	}

	sel, err := e.selector.Select(cat)
	if err != nil {
		return fail(err)
	}
	res.Channels = sel.Refs
	res.Missing = sel.Missing
	for _, name := range sel.Missing {
		log.Debug().Str("channel", name).Err(ErrChannelNotFound).Msg("requested channel skipped")
	}

	cols := e.builder.Header(sel.Refs, e.strategy.Timed())
	res.Columns = len(cols)
	if err := w.WriteHeader(cols); err != nil {
		return fail(err)
	}

	if e.strategy.Mode() == ModePositional {
		log.Warn().Msg("positional alignment is deprecated and discards timestamps")
	}

	laps := cat.LapCount()
	log.Info().Int("laps", laps).Int("channels", len(sel.Refs)).Int("workers", max(e.workers, 1)).Msg("export started")

	record := func(t *Table) error {
		rows, err := w.WriteTable(t)
		if err != nil {
			return lapError(t.Lap.Index, err)
		}
		res.Laps++
		res.Rows += rows
		e.metrics.LapWritten(rows)
		log.Debug().Int("lap", t.Lap.Index+1).Int("rows", rows).Msg("lap written")
		return nil
	}

	if e.workers > 1 {
		err = e.exportParallel(ctx, cat, sel.Refs, laps, record)
	} else {
		err = e.exportSequential(ctx, cat, sel.Refs, laps, record)
	}
	if err != nil {
		return fail(err)
	}

	if err := w.Flush(); err != nil {
		return fail(&LapError{Lap: -1, Err: err})
	}

	res.Elapsed = e.clock.Since(start)
	e.metrics.ExportFinished(res.Elapsed)
	log.Info().Int("laps", res.Laps).Int("rows", res.Rows).Dur("elapsed", res.Elapsed).Msg("export finished")
	return res, nil
}

func (e *Exporter) exportSequential(ctx context.Context, cat telemetry.Catalog, refs []ChannelRef, laps int, record func(*Table) error) error {
	for lap := 0; lap < laps; lap++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := e.prepareLap(cat, lap, refs)
		if err != nil {
			return err
		}
		if err := record(t); err != nil {
			return err
		}
	}
	return nil
}

// exportParallel prepares laps on up to e.workers goroutines while the
// calling goroutine stays the only writer. Each lap has a one-slot result
// channel drained in lap order, and at most 2*workers laps are in flight so
// finished tables cannot pile up behind a slow lap.
func (e *Exporter) exportParallel(ctx context.Context, cat telemetry.Catalog, refs []ChannelRef, laps int, record func(*Table) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	slots := make([]chan lapResult, laps)
	for i := range slots {
		slots[i] = make(chan lapResult, 1)
	}
	window := make(chan struct{}, 2*e.workers)
	busy := make(chan struct{}, e.workers)

	g.Go(func() error {
		for lap := 0; lap < laps; lap++ {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			select {
			case busy <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			lap := lap // per-iteration copy; module targets go 1.21 loop semantics
			g.Go(func() error {
				defer func() { <-busy }()
				t, err := e.prepareLap(cat, lap, refs)
				slots[lap] <- lapResult{table: t, err: err}
				return nil
			})
		}
		return nil
	})

	var err error
	for lap := 0; lap < laps && err == nil; lap++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case r := <-slots[lap]:
			<-window
			err = r.err
			if err == nil {
				err = record(r.table)
			}
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	cancel()
	_ = g.Wait()
	return err
}

// prepareLap runs the selector, strategy and table builder for one lap.
func (e *Exporter) prepareLap(cat telemetry.Catalog, lap int, refs []ChannelRef) (*Table, error) {
	info, err := cat.LapInfo(lap)
	if err != nil {
		return nil, &LapError{Lap: lap, Err: fmt.Errorf("%w: lap info: %w", ErrLoadFailure, err)}
	}
	info.Index = lap

	chs, err := e.selector.SelectLap(cat, lap, refs)
	if err != nil {
		return nil, err
	}

	a, err := e.strategy.Align(chs)
	if err != nil {
		return nil, lapError(lap, err)
	}

	t, err := e.builder.Build(info, chs, a)
	if err != nil {
		return nil, lapError(lap, err)
	}
	e.log.Trace().Int("lap", lap+1).Int("rows", t.Len()).Msg("lap aligned")
	return t, nil
}
