package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidBar      = errors.New("invalid bar")
	ErrUnorderedSeries = errors.New("bars not in strictly ascending date order")
	ErrEmptyInstrument = errors.New("instrument code is empty")
)

// Bar is one daily OHLC record. MorningClose and AfternoonOpen are carried
// for sources that split the session; the backtest ignores them.
type Bar struct {
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	MorningClose  *float64  `json:"morning_close,omitempty"`
	AfternoonOpen *float64  `json:"afternoon_open,omitempty"`
}

// Range is high minus low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Validate checks that prices are finite and low <= min(open, close) <= max(open, close) <= high.
func (b Bar) Validate() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s non-finite price", ErrInvalidBar, b.Date.Format("2006-01-02"))
		}
	}
	if b.Low > math.Min(b.Open, b.Close) || math.Max(b.Open, b.Close) > b.High {
		return fmt.Errorf("%w: %s o=%g h=%g l=%g c=%g",
			ErrInvalidBar, b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// Series is an immutable, date-ascending bar sequence for one instrument.
type Series struct {
	code  string
	bars  []Bar
	index map[time.Time]int
}

// NewSeries validates bars and indexes them by calendar date.
// The slice is copied; callers may reuse theirs.
func NewSeries(code string, bars []Bar) (*Series, error) {
	if code == "" {
		return nil, ErrEmptyInstrument
	}

	own := make([]Bar, len(bars))
	index := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		b.Date = dayOf(b.Date)
		if i > 0 && !b.Date.After(own[i-1].Date) {
			return nil, fmt.Errorf("%s: %w at %s", code, ErrUnorderedSeries, b.Date.Format("2006-01-02"))
		}
		own[i] = b
		index[b.Date] = i
	}
	return &Series{code: code, bars: own, index: index}, nil
}

func (s *Series) Code() string { return s.code }

func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at position i.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Slice returns bars[from:to]. The result must not be modified.
func (s *Series) Slice(from, to int) []Bar { return s.bars[from:to] }

// Bars returns a copy of all bars.
func (s *Series) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// IndexOf returns the position of the bar dated on day, if that day traded.
func (s *Series) IndexOf(day time.Time) (int, bool) {
	i, ok := s.index[dayOf(day)]
	return i, ok
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
