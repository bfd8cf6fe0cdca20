package features

import (
	"errors"
	"fmt"
	"math"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/util"
)

const DefaultLookback = 60

var (
	ErrInsufficientHistory = errors.New("insufficient history before anchor")
	ErrInsufficientFuture  = errors.New("insufficient bars after anchor")
	ErrAnchorOutOfRange    = errors.New("anchor index out of range")
	ErrFlatRange           = errors.New("window has zero high-low range")
)

// AnchorWindow is a read-only view of a series around one anchor day.
// Lookback ends with the anchor bar; Prior is the bar just before Lookback.
type AnchorWindow struct {
	Prior    models.Bar
	Lookback []models.Bar
	Forward  []models.Bar
}

// MakeWindow slices series around anchorIndex. It requires lookback bars strictly
// before the anchor and lookahead bars after it. No bars are copied.
func MakeWindow(series *models.Series, anchorIndex, lookback, lookahead int) (AnchorWindow, error) {
	if lookback <= 0 || lookahead < 0 {
		return AnchorWindow{}, fmt.Errorf("window lookback=%d lookahead=%d: %w", lookback, lookahead, ErrAnchorOutOfRange)
	}
	if anchorIndex < 0 || anchorIndex >= series.Len() {
		return AnchorWindow{}, fmt.Errorf("anchor %d of %d: %w", anchorIndex, series.Len(), ErrAnchorOutOfRange)
	}
	if anchorIndex < lookback {
		return AnchorWindow{}, ErrInsufficientHistory
	}
	if series.Len()-1-anchorIndex < lookahead {
		return AnchorWindow{}, ErrInsufficientFuture
	}

	return AnchorWindow{
		Prior:    series.At(anchorIndex - lookback),
		Lookback: series.Slice(anchorIndex-lookback+1, anchorIndex+1),
		Forward:  series.Slice(anchorIndex+1, anchorIndex+1+lookahead),
	}, nil
}

// Anchor returns the anchor bar.
func (w AnchorWindow) Anchor() models.Bar {
	return w.Lookback[len(w.Lookback)-1]
}

// Tail returns the last n lookback bars, anchor included.
func (w AnchorWindow) Tail(n int) []models.Bar {
	if n > len(w.Lookback) {
		n = len(w.Lookback)
	}
	return w.Lookback[len(w.Lookback)-n:]
}

// GapAdjusted returns a copy of the lookback bars with each open replaced by the
// previous close and high/low widened to cover it, so overnight gaps read as
// intraday movement.
func (w AnchorWindow) GapAdjusted() []models.Bar {
	out := make([]models.Bar, len(w.Lookback))
	prevClose := w.Prior.Close
	for i, b := range w.Lookback {
		b.Open = prevClose
		b.High = math.Max(b.High, b.Open)
		b.Low = math.Min(b.Low, b.Open)
		out[i] = b
		prevClose = w.Lookback[i].Close
	}
	return out
}

// StandardizedRangeDiff is mean(high-low) / (max high - min low), truncated to
// 3 decimals. Near 0 means a tight range; larger values mean wide daily swings.
func StandardizedRangeDiff(bars []models.Bar) (float64, error) {
	if len(bars) == 0 {
		return 0, ErrFlatRange
	}
	hi, lo := HighLow(bars)
	span := hi - lo
	if !(span > 0) {
		return 0, ErrFlatRange
	}

	var sum float64
	for _, b := range bars {
		sum += b.Range()
	}
	return util.Trunc(sum/float64(len(bars))/span, 3), nil
}

// HighLow returns max(high) and min(low) over bars.
func HighLow(bars []models.Bar) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}

// ATR is the mean high-low range of the last n bars rounded to 1 decimal.
func ATR(bars []models.Bar, n int) float64 {
	if n <= 0 || len(bars) == 0 {
		return 0
	}
	if n > len(bars) {
		n = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-n:] {
		sum += b.Range()
	}
	return util.Round(sum/float64(n), 1)
}
