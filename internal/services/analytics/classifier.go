package analytics

import (
	"errors"
	"fmt"
	"math"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/services/features"
)

var (
	// ErrInvariantViolation means the anchor closed both above the prior high and
	// below the prior low, which only malformed bars can produce.
	ErrInvariantViolation = errors.New("breakout invariant violated")
	// ErrDegenerateRange means a stop distance or range statistic came out zero,
	// negative or non-finite; the day cannot produce a normalized return.
	ErrDegenerateRange = errors.New("degenerate range")
	ErrWindowTooShort  = errors.New("window shorter than classifier requires")
)

// DefaultStopFractions are the retracement ratios used for stop distances.
var DefaultStopFractions = []float64{0.38, 0.50, 0.62}

const (
	DefaultBreakoutBars = 20
	DefaultRangeBars    = features.DefaultLookback
)

type ClassifierOption func(*Classifier)

// WithBreakoutBars sets the breakout window length, anchor included.
func WithBreakoutBars(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 1 {
			c.breakoutBars = n
		}
	}
}

// WithRangeBars sets how many gap-adjusted bars feed the range-diff.
func WithRangeBars(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.rangeBars = n
		}
	}
}

// WithStopFractions replaces the retracement ratios.
func WithStopFractions(fs []float64) ClassifierOption {
	return func(c *Classifier) {
		if len(fs) > 0 {
			c.fractions = append([]float64(nil), fs...)
		}
	}
}

// Classifier decides whether an anchor day broke out of its prior range and
// derives the stop distances a simulated trade would use.
type Classifier struct {
	breakoutBars int
	rangeBars    int
	fractions    []float64
}

func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		breakoutBars: DefaultBreakoutBars,
		rangeBars:    DefaultRangeBars,
		fractions:    DefaultStopFractions,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fractions returns the configured stop fractions.
func (c *Classifier) Fractions() []float64 {
	return c.fractions
}

// MinLookback is the lookback a window needs for Classify.
func (c *Classifier) MinLookback() int {
	if c.breakoutBars > c.rangeBars {
		return c.breakoutBars
	}
	return c.rangeBars
}

// Classify returns the event for the window's anchor day without outcomes or sizing.
func (c *Classifier) Classify(w features.AnchorWindow) (models.BreakoutEvent, error) {
	if len(w.Lookback) < c.MinLookback() {
		return models.BreakoutEvent{}, fmt.Errorf("%w: have %d, need %d", ErrWindowTooShort, len(w.Lookback), c.MinLookback())
	}

	window := w.Tail(c.breakoutBars)
	anchor := window[len(window)-1]
	prevHigh, prevLow := features.HighLow(window[:len(window)-1])

	status, err := breakoutStatus(anchor, prevHigh, prevLow)
	if err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("%s: %w", anchor.Date.Format("2006-01-02"), err)
	}
	direction := status.Direction()

	rangeHigh, rangeLow := features.HighLow(window)
	var span float64
	switch direction {
	case models.Long:
		span = anchor.Close - rangeLow
	case models.Short:
		span = rangeHigh - anchor.Close
	default:
		span = rangeHigh - rangeLow
	}

	stops := make([]models.StopDistance, 0, len(c.fractions))
	for _, f := range c.fractions {
		d := span * f
		if !(d > 0) || math.IsInf(d, 0) {
			return models.BreakoutEvent{}, fmt.Errorf("%w: stop distance %g at fraction %.2f on %s",
				ErrDegenerateRange, d, f, anchor.Date.Format("2006-01-02"))
		}
		stops = append(stops, models.StopDistance{Fraction: f, Distance: d})
	}

	adjusted := w.GapAdjusted()
	rangeDiff, err := features.StandardizedRangeDiff(adjusted[len(adjusted)-c.rangeBars:])
	if err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("%w: range diff on %s: %v", ErrDegenerateRange, anchor.Date.Format("2006-01-02"), err)
	}

	return models.BreakoutEvent{
		AnchorDate: anchor.Date,
		Direction:  direction,
		Status:     status,
		Close:      anchor.Close,
		PrevHigh:   prevHigh,
		PrevLow:    prevLow,
		Stops:      stops,
		RangeDiff:  rangeDiff,
	}, nil
}

func breakoutStatus(anchor models.Bar, prevHigh, prevLow float64) (models.Status, error) {
	up := anchor.Close > prevHigh
	down := anchor.Close < prevLow
	switch {
	case up && down:
		return 0, fmt.Errorf("%w: close %g above high %g and below low %g", ErrInvariantViolation, anchor.Close, prevHigh, prevLow)
	case up:
		return models.BreakoutResistance, nil
	case down:
		return models.BreakoutSupport, nil
	}

	pierceHigh := anchor.High > prevHigh
	pierceLow := anchor.Low < prevLow
	switch {
	case pierceHigh && !pierceLow:
		return models.FailedBreakoutResistance, nil
	case pierceLow && !pierceHigh:
		return models.FailedBreakoutSupport, nil
	default:
		return models.NoChange, nil
	}
}
