package usecase

import (
	"errors"
	"fmt"
	"math"
	"time"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/services/stats"
	"RangeBreak/pkg/util"
)

// DefaultBands are the compression bands over the standardized range-diff.
var DefaultBands = []models.Band{
	{Min: 0, Max: 0.09},
	{Min: 0.09, Max: 0.115},
	{Min: 0.115, Max: math.Inf(1)},
}

var ErrOverlappingBands = errors.New("compression bands overlap or are unordered")

// RegimeAggregator buckets simulated outcomes by status, horizon, stop fraction,
// regime label and compression band, and tests each bucket's mean against zero.
type RegimeAggregator struct {
	horizons  []int
	fractions []float64
	bands     []models.Band
	alpha     float64
	now       func() time.Time
}

// NewRegimeAggregator validates bands, which must be sorted and non-overlapping.
func NewRegimeAggregator(horizons []int, fractions []float64, bands []models.Band, alpha float64) (*RegimeAggregator, error) {
	if len(bands) == 0 {
		bands = DefaultBands
	}
	for i, b := range bands {
		if !(b.Max > b.Min) || (i > 0 && b.Min < bands[i-1].Max) {
			return nil, fmt.Errorf("%w: %s", ErrOverlappingBands, b.Label())
		}
	}
	if !(alpha > 0 && alpha < 1) {
		alpha = stats.DefaultAlpha
	}
	return &RegimeAggregator{
		horizons:  horizons,
		fractions: fractions,
		bands:     bands,
		alpha:     alpha,
		now:       time.Now,
	}, nil
}

// Bands returns the configured compression bands.
func (a *RegimeAggregator) Bands() []models.Band {
	return a.bands
}

func (a *RegimeAggregator) band(v float64) (models.Band, bool) {
	for _, b := range a.bands {
		if b.Contains(v) {
			return b, true
		}
	}
	return models.Band{}, false
}

// Aggregate builds the full bucket grid so that empty cells appear as no_data.
// Events on unlabeled days or outside every band are counted in the report
// header and contribute to no bucket.
func (a *RegimeAggregator) Aggregate(result *models.BacktestResult, labels models.RegimeCalendar) (*models.Report, error) {
	values := make(map[models.BucketKey][]float64)
	rep := &models.Report{
		GeneratedAt: a.now().UTC(),
		From:        result.From,
		To:          result.To,
		Events:      len(result.Events),
	}

	for i := range result.Events {
		ev := &result.Events[i]
		regime := labels.Lookup(ev.AnchorDate)
		if regime == models.Unlabeled {
			rep.Unlabeled++
			continue
		}
		band, ok := a.band(ev.RangeDiff)
		if !ok {
			rep.OutOfBand++
			continue
		}
		for _, o := range ev.Outcomes {
			if math.IsNaN(o.Return) {
				return nil, fmt.Errorf("%s %s h=%d: %w", ev.Instrument, ev.AnchorDate.Format(util.DateLayout), o.Horizon, stats.ErrNaN)
			}
			key := models.BucketKey{
				Status:       ev.Status,
				Horizon:      o.Horizon,
				StopFraction: o.StopFraction,
				Regime:       regime,
				Band:         band.Label(),
			}
			values[key] = append(values[key], o.Return)
		}
	}

	rep.Buckets = make([]models.BucketStat, 0, len(models.Statuses)*len(a.horizons)*len(a.fractions)*len(models.RegimeLabels)*len(a.bands))
	for _, st := range models.Statuses {
		for _, h := range a.horizons {
			for _, f := range a.fractions {
				for _, rg := range models.RegimeLabels {
					for _, b := range a.bands {
						key := models.BucketKey{Status: st, Horizon: h, StopFraction: f, Regime: rg, Band: b.Label()}
						stat, err := a.bucket(key, values[key])
						if err != nil {
							return nil, err
						}
						rep.Buckets = append(rep.Buckets, stat)
					}
				}
			}
		}
	}
	return rep, nil
}

func (a *RegimeAggregator) bucket(key models.BucketKey, xs []float64) (models.BucketStat, error) {
	stat := models.BucketStat{BucketKey: key, N: len(xs)}
	res, err := stats.OneSampleTTest(xs)
	switch {
	case err == nil:
		stat.State = models.BucketOK
		stat.Mean = ptr(res.Mean)
		stat.TStat = ptr(res.T)
		stat.PValue = ptr(res.PValue)
		stat.Significant = res.Significant(a.alpha)
	case errors.Is(err, stats.ErrNoData):
		stat.State = models.BucketNoData
	case errors.Is(err, stats.ErrInsufficientSamples):
		stat.State = models.BucketInsufficient
		stat.Mean = ptr(res.Mean)
	case errors.Is(err, stats.ErrZeroVariance):
		stat.State = models.BucketZeroVariance
		stat.Mean = ptr(res.Mean)
	default:
		return stat, fmt.Errorf("bucket %s/%d/%.2f/%s/%s: %w", key.Status, key.Horizon, key.StopFraction, key.Regime, key.Band, err)
	}
	return stat, nil
}

func ptr(v float64) *float64 { return &v }
