package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/services/regime"
	"RangeBreak/pkg/logger"

	"github.com/google/uuid"
)

var ErrRunInProgress = errors.New("a backtest is already running")

// BacktestParams selects the period and sizing of one run. An empty
// Instruments list means the whole roster.
type BacktestParams struct {
	From        time.Time
	To          time.Time
	CapitalUnit float64
	Instruments []string
}

// BacktestService runs the full pipeline: roster, benchmark regimes, driver,
// aggregation and sinks. It keeps the latest finished run for the API.
type BacktestService struct {
	roster     drepo.RosterSource
	bars       drepo.BarSource
	labeler    *regime.Labeler
	driver     *BacktestDriver
	aggregator *RegimeAggregator
	sinks      []drepo.RunSink
	metrics    drepo.Metrics
	log        *logger.Logger
	benchmark  string

	running atomic.Bool
	mu      sync.RWMutex
	latest  *models.Run
	lastErr error

	// background runs started by Start derive from this context.
	base   context.Context
	cancel context.CancelFunc
}

// NewBacktestService creates a new BacktestService instance.
func NewBacktestService(
	roster drepo.RosterSource,
	bars drepo.BarSource,
	labeler *regime.Labeler,
	driver *BacktestDriver,
	aggregator *RegimeAggregator,
	sinks []drepo.RunSink,
	metrics drepo.Metrics,
	log *logger.Logger,
	benchmark string,
) *BacktestService {
	base, cancel := context.WithCancel(context.Background())
	return &BacktestService{
		base:       base,
		cancel:     cancel,
		roster:     roster,
		bars:       bars,
		labeler:    labeler,
		driver:     driver,
		aggregator: aggregator,
		sinks:      sinks,
		metrics:    metrics,
		log:        log,
		benchmark:  benchmark,
	}
}

// Latest returns the most recent completed run.
func (s *BacktestService) Latest() (*models.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// Running reports whether a run is in flight.
func (s *BacktestService) Running() bool {
	return s.running.Load()
}

// LastError returns the error of the most recent failed run, if any.
func (s *BacktestService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Run executes one backtest. Only one run may be in flight; a second caller
// gets ErrRunInProgress. Sink failures are logged and do not fail the run.
func (s *BacktestService) Run(ctx context.Context, p BacktestParams) (*models.Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.execute(ctx, uuid.NewString(), p)
}

// Start launches a run in the background and returns its ID. The run is
// cancelled by Close, not by the caller's context.
func (s *BacktestService) Start(p BacktestParams) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	id := uuid.NewString()
	go func() {
		defer s.running.Store(false)
		if _, err := s.execute(s.base, id, p); err != nil {
			s.log.Error("background backtest failed", logger.String("run_id", id), logger.Error(err))
		}
	}()
	return id, nil
}

// Close cancels a background run, if one is in flight.
func (s *BacktestService) Close() {
	s.cancel()
}

func (s *BacktestService) execute(ctx context.Context, id string, p BacktestParams) (run *models.Run, err error) {
	defer func() {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}()

	run = &models.Run{ID: id, StartedAt: time.Now().UTC()}
	log := s.log.With(logger.String("run_id", run.ID))

	instruments, err := s.instruments(ctx, p.Instruments)
	if err != nil {
		s.metrics.RecordError("roster")
		return nil, err
	}

	calendar, days, err := s.regimes(ctx, p.From, p.To)
	if err != nil {
		s.metrics.RecordError("benchmark")
		return nil, err
	}
	run.Regimes = days

	log.Info("backtest started",
		logger.Date("from", p.From),
		logger.Date("to", p.To),
		logger.Int("instruments", len(instruments)),
		logger.Float64("capital_unit", p.CapitalUnit),
	)

	result, err := s.driver.Run(ctx, instruments, p.From, p.To, p.CapitalUnit)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	run.Result = result

	report, err := s.aggregator.Aggregate(result, calendar)
	if err != nil {
		s.metrics.RecordError("aggregate")
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	report.RunID = run.ID
	run.Report = report
	run.Duration = time.Since(run.StartedAt)

	for _, sink := range s.sinks {
		if err := sink.Write(ctx, run); err != nil {
			s.metrics.RecordError("sink_" + sink.Name())
			log.Error("sink failed", logger.String("sink", sink.Name()), logger.Error(err))
			continue
		}
		log.Debug("sink written", logger.String("sink", sink.Name()))
	}

	s.mu.Lock()
	s.latest = run
	s.mu.Unlock()

	log.Info("backtest completed",
		logger.Int("events", len(result.Events)),
		logger.Int("failed", len(result.Failed)),
		logger.Int("unlabeled", report.Unlabeled),
		logger.Int("out_of_band", report.OutOfBand),
		logger.Duration("elapsed", run.Duration),
	)
	return run, nil
}

func (s *BacktestService) instruments(ctx context.Context, only []string) ([]models.Instrument, error) {
	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if len(only) == 0 {
		return roster, nil
	}

	byCode := make(map[string]models.Instrument, len(roster))
	for _, inst := range roster {
		byCode[inst.Code] = inst
	}
	out := make([]models.Instrument, 0, len(only))
	for _, code := range only {
		inst, ok := byCode[code]
		if !ok {
			inst = models.Instrument{Code: code}
		}
		out = append(out, inst)
	}
	return out, nil
}

// regimes labels the whole benchmark history so the split points do not depend
// on the backtest period, then keeps the days inside it.
func (s *BacktestService) regimes(ctx context.Context, from, to time.Time) (models.RegimeCalendar, []models.RegimeDay, error) {
	series, err := s.bars.LoadSeries(ctx, s.benchmark)
	if err != nil {
		return nil, nil, fmt.Errorf("load benchmark %s: %w", s.benchmark, err)
	}
	days, err := s.labeler.Label(series)
	if err != nil {
		return nil, nil, fmt.Errorf("label benchmark %s: %w", s.benchmark, err)
	}
	return regime.Calendar(days), regime.Between(days, from, to), nil
}
