package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/services/analytics"
	"RangeBreak/internal/services/features"
	"RangeBreak/pkg/logger"
	"RangeBreak/pkg/util"
)

var (
	ErrInvalidRange   = errors.New("from is after to")
	ErrInvalidCapital = errors.New("capital unit must be positive")
)

// DriverOptions tune a BacktestDriver. Zero values fall back to defaults.
type DriverOptions struct {
	Workers        int
	Lookback       int
	ATRBars        int
	IncludeControl bool
}

// BacktestDriver runs the classifier and simulator over every anchor day of
// every instrument, loading series through a bounded worker pool.
type BacktestDriver struct {
	bars       drepo.BarSource
	classifier *analytics.Classifier
	sim        *analytics.StopLossSimulator
	metrics    drepo.Metrics
	log        *logger.Logger
	opts       DriverOptions
}

// NewBacktestDriver creates a new BacktestDriver instance.
func NewBacktestDriver(
	bars drepo.BarSource,
	classifier *analytics.Classifier,
	sim *analytics.StopLossSimulator,
	metrics drepo.Metrics,
	log *logger.Logger,
	opts DriverOptions,
) *BacktestDriver {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Lookback < classifier.MinLookback() {
		opts.Lookback = classifier.MinLookback()
	}
	if opts.ATRBars <= 0 {
		opts.ATRBars = analytics.DefaultATRBars
	}
	return &BacktestDriver{
		bars:       bars,
		classifier: classifier,
		sim:        sim,
		metrics:    metrics,
		log:        log,
		opts:       opts,
	}
}

// instrumentResult is what one worker produces for one instrument.
type instrumentResult struct {
	events  []models.BreakoutEvent
	issues  []models.DataQualityIssue
	failure *models.InstrumentFailure
}

// Run backtests instruments over anchor days in [from, to]. capitalUnit sizes
// each event and is not used by classification or simulation.
//
// Instrument failures are collected, not returned. The only errors are invalid
// arguments and context cancellation; on cancellation the partial result of the
// instruments that finished is returned alongside ctx.Err().
func (d *BacktestDriver) Run(ctx context.Context, instruments []models.Instrument, from, to time.Time, capitalUnit float64) (*models.BacktestResult, error) {
	from, to = util.Day(from), util.Day(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format(util.DateLayout), to.Format(util.DateLayout))
	}
	if !(capitalUnit > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidCapital, capitalUnit)
	}

	start := time.Now()
	res := &models.BacktestResult{From: from, To: to, CapitalUnit: capitalUnit, Instruments: len(instruments)}

	workers := d.opts.Workers
	if workers > len(instruments) {
		workers = len(instruments)
	}

	jobs := make(chan models.Instrument)
	out := make(chan instrumentResult)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inst := range jobs {
				out <- d.runInstrument(ctx, inst, from, to, capitalUnit)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, inst := range instruments {
			select {
			case <-ctx.Done():
				return
			case jobs <- inst:
			}
		}
	}()
	go func() { wg.Wait(); close(out) }()

	for r := range out {
		if r.failure != nil {
			res.Failed = append(res.Failed, *r.failure)
			continue
		}
		res.Events = append(res.Events, r.events...)
		res.Issues = append(res.Issues, r.issues...)
	}

	sortResult(res)
	d.metrics.RecordLatency("backtest", time.Since(start))
	d.log.Info("backtest finished",
		logger.Int("instruments", len(instruments)),
		logger.Int("events", len(res.Events)),
		logger.Int("failed", len(res.Failed)),
		logger.Int("issues", len(res.Issues)),
		logger.Duration("elapsed", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (d *BacktestDriver) runInstrument(ctx context.Context, inst models.Instrument, from, to time.Time, capitalUnit float64) (r instrumentResult) {
	defer func() {
		if p := recover(); p != nil {
			d.metrics.RecordError("instrument_panic")
			d.log.Error("instrument panicked", logger.String("instrument", inst.Code), logger.Any("panic", p))
			r = instrumentResult{failure: &models.InstrumentFailure{Instrument: inst.Code, Reason: fmt.Sprintf("panic: %v", p)}}
		}
	}()

	if err := ctx.Err(); err != nil {
		return instrumentResult{failure: &models.InstrumentFailure{Instrument: inst.Code, Reason: err.Error()}}
	}

	start := time.Now()
	series, err := d.bars.LoadSeries(ctx, inst.Code)
	d.metrics.RecordLatency("load_series", time.Since(start))
	if err != nil {
		d.metrics.RecordInstrument("failed")
		d.log.Warn("instrument skipped", logger.String("instrument", inst.Code), logger.Error(err))
		return instrumentResult{failure: &models.InstrumentFailure{Instrument: inst.Code, Reason: err.Error()}}
	}

	lookahead := d.sim.Lookahead()
	_ = util.EachDay(from, to, func(day time.Time) error {
		idx, ok := series.IndexOf(day)
		if !ok {
			return nil
		}
		w, err := features.MakeWindow(series, idx, d.opts.Lookback, lookahead)
		if err != nil {
			return nil
		}
		ev, issue := d.evaluate(inst.Code, w, capitalUnit)
		switch {
		case issue != nil:
			r.issues = append(r.issues, *issue)
		case ev != nil:
			r.events = append(r.events, *ev)
		}
		return nil
	})

	d.metrics.RecordInstrument("ok")
	counts := make(map[models.Direction]int, 3)
	for _, ev := range r.events {
		counts[ev.Direction]++
	}
	for dir, n := range counts {
		d.metrics.RecordEvents(dir.String(), n)
	}
	return r
}

// evaluate classifies and simulates one window. It returns a nil event for a
// Control day that is not kept, and an issue for data that cannot produce a
// defined return.
func (d *BacktestDriver) evaluate(code string, w features.AnchorWindow, capitalUnit float64) (*models.BreakoutEvent, *models.DataQualityIssue) {
	anchor := w.Anchor()
	ev, err := d.classifier.Classify(w)
	if err != nil {
		return nil, d.issue(code, anchor.Date, err)
	}
	if ev.Direction == models.Control && !d.opts.IncludeControl {
		return nil, nil
	}

	ev.Instrument = code
	ev.Outcomes, err = d.sim.SimulateGrid(&ev, w.Forward)
	if err != nil {
		return nil, d.issue(code, anchor.Date, err)
	}
	ev.Sizing = analytics.Size(w.Lookback, ev.Close, capitalUnit, d.opts.ATRBars)
	return &ev, nil
}

func (d *BacktestDriver) issue(code string, date time.Time, err error) *models.DataQualityIssue {
	kind := "other"
	switch {
	case errors.Is(err, analytics.ErrDegenerateRange):
		kind = "degenerate_range"
	case errors.Is(err, analytics.ErrInvariantViolation):
		kind = "invariant_violation"
	}
	d.metrics.RecordIssue(kind)
	d.log.Warn("anchor day skipped", logger.String("instrument", code), logger.String("kind", kind), logger.Error(err))
	return &models.DataQualityIssue{Instrument: code, Date: date, Reason: err.Error()}
}

func sortResult(res *models.BacktestResult) {
	sort.SliceStable(res.Events, func(i, j int) bool {
		a, b := res.Events[i], res.Events[j]
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		return a.AnchorDate.Before(b.AnchorDate)
	})
	sort.SliceStable(res.Issues, func(i, j int) bool {
		a, b := res.Issues[i], res.Issues[j]
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		return a.Date.Before(b.Date)
	})
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Instrument < res.Failed[j].Instrument })
}
