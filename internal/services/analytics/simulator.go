package analytics

import (
	"fmt"
	"math"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/util"
)

// DefaultHorizons are the holding periods, in trading days, that get an outcome.
var DefaultHorizons = []int{5, 10, 20}

// StopLossSimulator turns a classified anchor day into stop-bounded returns.
type StopLossSimulator struct {
	horizons []int
}

func NewStopLossSimulator(horizons []int) *StopLossSimulator {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	return &StopLossSimulator{horizons: append([]int(nil), horizons...)}
}

// Horizons returns the configured horizons.
func (s *StopLossSimulator) Horizons() []int {
	return s.horizons
}

// Lookahead is the number of forward bars the longest horizon needs.
func (s *StopLossSimulator) Lookahead() int {
	longest := 0
	for _, h := range s.horizons {
		if h > longest {
			longest = h
		}
	}
	return longest + 1
}

// Simulate enters at forward[0].Open and measures the move in units of distance.
//
// The stop check runs over every bar in forward, not just the first horizon+1:
// a breach of -1 (against a long) or +1 (against a short) anywhere in the path
// yields -1. Otherwise the result is the close of forward[horizon] relative to
// the entry, rounded to 2 decimals and sign-flipped for shorts. ok is false when
// forward has fewer than horizon+1 bars.
func Simulate(direction models.Direction, forward []models.Bar, distance float64, horizon int) (out models.Outcome, ok bool, err error) {
	if !(distance > 0) || math.IsInf(distance, 0) {
		return out, false, fmt.Errorf("%w: stop distance %g", ErrDegenerateRange, distance)
	}
	if horizon < 0 || len(forward) < horizon+1 {
		return out, false, nil
	}

	entry := forward[0].Open
	out.Horizon = horizon

	if stoppedOut(direction, forward, entry, distance) {
		out.Return = -1
		out.StoppedOut = true
		return out, true, nil
	}

	r := util.Round((forward[horizon].Close-entry)/distance, 2)
	if direction == models.Short {
		r = -r
	}
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	out.Return = r
	return out, true, nil
}

func stoppedOut(direction models.Direction, forward []models.Bar, entry, distance float64) bool {
	if direction == models.Short {
		worst := math.Inf(-1)
		for _, b := range forward {
			worst = math.Max(worst, (b.High-entry)/distance)
		}
		return worst > 1
	}

	worst := math.Inf(1)
	for _, b := range forward {
		worst = math.Min(worst, (b.Low-entry)/distance)
	}
	return worst < -1
}

// SimulateGrid runs Simulate for every (horizon, stop fraction) pair of the event,
// horizon-major, skipping horizons the forward slice cannot reach.
func (s *StopLossSimulator) SimulateGrid(ev *models.BreakoutEvent, forward []models.Bar) ([]models.Outcome, error) {
	outcomes := make([]models.Outcome, 0, len(s.horizons)*len(ev.Stops))
	for _, h := range s.horizons {
		for _, stop := range ev.Stops {
			o, ok, err := Simulate(ev.Direction, forward, stop.Distance, h)
			if err != nil {
				return nil, fmt.Errorf("h=%d f=%.2f: %w", h, stop.Fraction, err)
			}
			if !ok {
				continue
			}
			o.StopFraction = stop.Fraction
			outcomes = append(outcomes, o)
		}
	}
	return outcomes, nil
}
