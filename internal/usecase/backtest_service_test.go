package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/services/regime"
	"RangeBreak/pkg/logger"
	"RangeBreak/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// benchmarkSeries alternates up and down overnight gaps.
func benchmarkSeries(t *testing.T) *models.Series {
	t.Helper()
	bars := make([]models.Bar, 82)
	for i := range bars {
		o := 100.0
		if i > 0 {
			o = 100 + float64(i%5-2)*0.5
		}
		bars[i] = models.Bar{Date: dayN(i), Open: o, Close: 100, High: math.Max(o, 100), Low: math.Min(o, 100)}
	}
	s, err := models.NewSeries("TOPIX", bars)
	require.NoError(t, err)
	return s
}

func newService(t *testing.T, bars drepo.BarSource, roster drepo.RosterSource, sinks ...drepo.RunSink) *BacktestService {
	t.Helper()
	labeler, err := regime.NewLabeler(regime.SplitTercile)
	require.NoError(t, err)
	return NewBacktestService(
		roster,
		bars,
		labeler,
		newDriver(bars, DriverOptions{Workers: 2}),
		newAggregator(t, nil),
		sinks,
		metrics.Nop{},
		logger.Nop(),
		"TOPIX",
	)
}

func TestBacktestService_Run(t *testing.T) {
	bars := &fakeBars{series: map[string]*models.Series{
		"TOPIX": benchmarkSeries(t),
		"7203":  breakoutSeries(t, "7203", longAnchor),
	}}
	roster := fakeRoster{instruments: []models.Instrument{{Code: "7203", Name: "Toyota"}, {Code: "9999", Name: "Gone"}}}
	ok := &captureSink{name: "memory"}
	broken := &captureSink{name: "broken", err: errBroken}
	svc := newService(t, bars, roster, broken, ok)

	_, found := svc.Latest()
	assert.False(t, found)

	run, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(81), CapitalUnit: 1e6})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, run.ID, run.Report.RunID)
	assert.Len(t, run.Result.Events, 1)
	require.Len(t, run.Result.Failed, 1)
	assert.Equal(t, "9999", run.Result.Failed[0].Instrument)
	assert.NotEmpty(t, run.Regimes)

	assert.Len(t, ok.runs, 1, "a failing sink does not block the others")
	assert.Len(t, broken.runs, 1)

	latest, found := svc.Latest()
	require.True(t, found)
	assert.Same(t, run, latest)
	assert.False(t, svc.Running())
}

func TestBacktestService_InstrumentFilter(t *testing.T) {
	bars := &fakeBars{series: map[string]*models.Series{
		"TOPIX": benchmarkSeries(t),
		"7203":  breakoutSeries(t, "7203", longAnchor),
	}}
	svc := newService(t, bars, fakeRoster{instruments: instruments("7203", "6758")})

	run, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(81), CapitalUnit: 1e6, Instruments: []string{"7203"}})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Result.Instruments)
	assert.Empty(t, run.Result.Failed)
}

func TestBacktestService_MissingBenchmark(t *testing.T) {
	svc := newService(t, &fakeBars{}, fakeRoster{})

	_, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(1), CapitalUnit: 1e6})
	assert.ErrorIs(t, err, drepo.ErrSeriesNotFound)
}

func TestBacktestService_SingleFlight(t *testing.T) {
	svc := newService(t, &fakeBars{}, fakeRoster{})
	svc.running.Store(true)

	_, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(1), CapitalUnit: 1e6})
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestBacktestService_PassesExplicitCapital(t *testing.T) {
	bars := &fakeBars{series: map[string]*models.Series{
		"TOPIX": benchmarkSeries(t),
		"7203":  breakoutSeries(t, "7203", longAnchor),
	}}
	svc := newService(t, bars, fakeRoster{instruments: instruments("7203")})

	small, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(81), CapitalUnit: 1e5})
	require.NoError(t, err)
	large, err := svc.Run(context.Background(), BacktestParams{From: dayN(0), To: dayN(81), CapitalUnit: 1e6})
	require.NoError(t, err)

	// ATR(5) over the window is 3.6
	assert.Equal(t, int64(27777), small.Result.Events[0].Sizing.Units)
	assert.Equal(t, int64(277777), large.Result.Events[0].Sizing.Units)
}

func TestBacktestService_StartInBackground(t *testing.T) {
	bars := &fakeBars{delay: 50 * time.Millisecond, series: map[string]*models.Series{
		"TOPIX": benchmarkSeries(t),
		"7203":  breakoutSeries(t, "7203", longAnchor),
	}}
	svc := newService(t, bars, fakeRoster{instruments: instruments("7203")})
	defer svc.Close()

	params := BacktestParams{From: dayN(0), To: dayN(81), CapitalUnit: 1e6}
	id, err := svc.Start(params)
	require.NoError(t, err)
	assert.True(t, svc.Running())

	_, err = svc.Start(params)
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.Eventually(t, func() bool { return !svc.Running() }, 2*time.Second, 10*time.Millisecond)
	run, found := svc.Latest()
	require.True(t, found)
	assert.Equal(t, id, run.ID)
	assert.NoError(t, svc.LastError())
}

func TestBacktestService_StartRecordsFailure(t *testing.T) {
	svc := newService(t, &fakeBars{}, fakeRoster{})
	defer svc.Close()

	_, err := svc.Start(BacktestParams{From: dayN(0), To: dayN(1), CapitalUnit: 1e6})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !svc.Running() }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, svc.LastError(), drepo.ErrSeriesNotFound)
	_, found := svc.Latest()
	assert.False(t, found)
}
