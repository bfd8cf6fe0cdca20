package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/services/analytics"
	"RangeBreak/pkg/logger"
	"RangeBreak/pkg/metrics"

	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return day0.AddDate(0, 0, n) }

// breakoutSeries has 60 quiet bars, one anchor bar at index 60 and 21 forward
// bars, so index 60 is the only anchor with enough history and future.
func breakoutSeries(t *testing.T, code string, anchor models.Bar) *models.Series {
	t.Helper()
	bars := make([]models.Bar, 0, 82)
	for i := 0; i < 60; i++ {
		bars = append(bars, models.Bar{Open: 100, High: 101, Low: 99, Close: 100})
	}
	bars = append(bars, anchor)
	for i := 0; i < 21; i++ {
		bars = append(bars, models.Bar{Open: 110, High: 112, Low: 109, Close: 111})
	}
	for i := range bars {
		bars[i].Date = dayN(i)
	}
	s, err := models.NewSeries(code, bars)
	require.NoError(t, err)
	return s
}

func flatSeries(t *testing.T, code string) *models.Series {
	t.Helper()
	bars := make([]models.Bar, 82)
	for i := range bars {
		bars[i] = models.Bar{Date: dayN(i), Open: 100, High: 100, Low: 100, Close: 100}
	}
	s, err := models.NewSeries(code, bars)
	require.NoError(t, err)
	return s
}

var longAnchor = models.Bar{Open: 100, High: 110, Low: 100, Close: 110}

// fakeBars serves series from a map and tracks how many loads overlap.
type fakeBars struct {
	series   map[string]*models.Series
	errs     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	loaded   []string
}

func (f *fakeBars) LoadSeries(ctx context.Context, code string) (*models.Series, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.loaded = append(f.loaded, code)
	f.mu.Unlock()

	if err, ok := f.errs[code]; ok {
		return nil, err
	}
	if s, ok := f.series[code]; ok {
		return s, nil
	}
	return nil, drepo.ErrSeriesNotFound
}

type fakeRoster struct {
	instruments []models.Instrument
	err         error
}

func (f fakeRoster) LoadRoster(context.Context) ([]models.Instrument, error) {
	return f.instruments, f.err
}

type captureSink struct {
	name string
	err  error
	runs []*models.Run
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Write(_ context.Context, run *models.Run) error {
	s.runs = append(s.runs, run)
	return s.err
}

var errBroken = errors.New("broken file")

func newDriver(bars drepo.BarSource, opts DriverOptions) *BacktestDriver {
	return NewBacktestDriver(
		bars,
		analytics.NewClassifier(),
		analytics.NewStopLossSimulator(nil),
		metrics.Nop{},
		logger.Nop(),
		opts,
	)
}

func instruments(codes ...string) []models.Instrument {
	out := make([]models.Instrument, len(codes))
	for i, c := range codes {
		out[i] = models.Instrument{Code: c}
	}
	return out
}
