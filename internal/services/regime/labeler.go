package regime

import (
	"errors"
	"fmt"
	"time"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/services/stats"
	"RangeBreak/pkg/util"
)

// Split selects how positive and negative gaps are cut into strength classes.
type Split string

const (
	// SplitTercile yields strong, moderate and mild on each side.
	SplitTercile Split = "tercile"
	// SplitMedian yields only strong and mild on each side.
	SplitMedian Split = "median"
)

var ErrUnknownSplit = errors.New("unknown regime split")

// Labeler tags each benchmark day with the regime of the overnight gap that follows it.
type Labeler struct {
	split Split
}

func NewLabeler(split Split) (*Labeler, error) {
	switch split {
	case "":
		split = SplitTercile
	case SplitTercile, SplitMedian:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, split)
	}
	return &Labeler{split: split}, nil
}

// Label computes gap ratios open[d+1]/close[d], rounded to 3 decimals, and
// labels each day d against thresholds taken from the whole series. The last
// bar has no next open and is omitted. Days with a ratio of exactly 1 are kept
// as Unlabeled.
func (l *Labeler) Label(benchmark *models.Series) ([]models.RegimeDay, error) {
	if benchmark.Len() < 2 {
		return nil, nil
	}

	days := make([]models.RegimeDay, 0, benchmark.Len()-1)
	var pos, neg []float64
	for i := 0; i < benchmark.Len()-1; i++ {
		cur, next := benchmark.At(i), benchmark.At(i+1)
		if !(cur.Close > 0) {
			days = append(days, models.RegimeDay{Date: cur.Date})
			continue
		}
		ratio := util.Round(next.Open/cur.Close, 3)
		days = append(days, models.RegimeDay{Date: cur.Date, GapRatio: ratio})
		switch {
		case ratio > 1:
			pos = append(pos, ratio)
		case ratio < 1:
			neg = append(neg, ratio)
		}
	}

	posCut, err := l.cuts(pos)
	if err != nil {
		return nil, fmt.Errorf("%s positive gaps: %w", benchmark.Code(), err)
	}
	negCut, err := l.cuts(neg)
	if err != nil {
		return nil, fmt.Errorf("%s negative gaps: %w", benchmark.Code(), err)
	}

	for i := range days {
		r := days[i].GapRatio
		switch {
		case r > 1:
			days[i].Label = l.positive(r, posCut)
		case r > 0 && r < 1:
			days[i].Label = l.negative(r, negCut)
		}
	}
	return days, nil
}

// cuts holds the lower and upper split points of one side. For the median
// split both are the median.
type cuts struct{ lower, upper float64 }

func (l *Labeler) cuts(xs []float64) (cuts, error) {
	if len(xs) == 0 {
		return cuts{}, nil
	}
	sorted, err := stats.SortedFinite(xs)
	if err != nil {
		return cuts{}, err
	}
	if l.split == SplitMedian {
		m := sorted[len(sorted)/2]
		return cuts{lower: m, upper: m}, nil
	}
	return cuts{lower: sorted[len(sorted)/3], upper: sorted[len(sorted)*2/3]}, nil
}

func (l *Labeler) positive(r float64, c cuts) models.RegimeLabel {
	switch {
	case r > c.upper:
		return models.StrongPositive
	case l.split == SplitTercile && r > c.lower:
		return models.ModeratePositive
	default:
		return models.MildPositive
	}
}

func (l *Labeler) negative(r float64, c cuts) models.RegimeLabel {
	switch {
	case r < c.lower:
		return models.StrongNegative
	case l.split == SplitTercile && r < c.upper:
		return models.ModerateNegative
	default:
		return models.MildNegative
	}
}

// Calendar indexes labeled days by date.
func Calendar(days []models.RegimeDay) models.RegimeCalendar {
	cal := make(models.RegimeCalendar, len(days))
	for _, d := range days {
		if d.Label != models.Unlabeled {
			cal[util.Day(d.Date)] = d.Label
		}
	}
	return cal
}

// Counts tallies days per label, Unlabeled included.
func Counts(days []models.RegimeDay) map[models.RegimeLabel]int {
	out := make(map[models.RegimeLabel]int, len(models.RegimeLabels)+1)
	for _, d := range days {
		out[d.Label]++
	}
	return out
}

// Between filters days to the closed interval [from, to].
func Between(days []models.RegimeDay, from, to time.Time) []models.RegimeDay {
	var out []models.RegimeDay
	for _, d := range days {
		if !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	return out
}
