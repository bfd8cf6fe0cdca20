package models

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// RegimeLabel classifies a trading day by the size and sign of the benchmark's overnight gap.
type RegimeLabel uint8

const (
	Unlabeled RegimeLabel = iota
	StrongPositive
	ModeratePositive
	MildPositive
	MildNegative
	ModerateNegative
	StrongNegative
)

var regimeNames = [...]string{
	Unlabeled:        "unlabeled",
	StrongPositive:   "strong_positive",
	ModeratePositive: "moderate_positive",
	MildPositive:     "mild_positive",
	MildNegative:     "mild_negative",
	ModerateNegative: "moderate_negative",
	StrongNegative:   "strong_negative",
}

// RegimeLabels lists the six labels in report order.
var RegimeLabels = []RegimeLabel{
	StrongPositive, ModeratePositive, MildPositive, MildNegative, ModerateNegative, StrongNegative,
}

func (r RegimeLabel) String() string {
	if int(r) < len(regimeNames) {
		return regimeNames[r]
	}
	return fmt.Sprintf("regime(%d)", uint8(r))
}

func (r RegimeLabel) MarshalText() ([]byte, error) {
	if int(r) >= len(regimeNames) {
		return nil, fmt.Errorf("invalid regime %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *RegimeLabel) UnmarshalText(b []byte) error {
	for i, name := range regimeNames {
		if name == string(b) {
			*r = RegimeLabel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown regime %q", b)
}

// RegimeDay is the benchmark gap observed after the close of Date and its label.
type RegimeDay struct {
	Date     time.Time   `json:"date"`
	GapRatio float64     `json:"gap_ratio"`
	Label    RegimeLabel `json:"label"`
}

// RegimeCalendar maps a calendar date to its label.
type RegimeCalendar map[time.Time]RegimeLabel

// Lookup returns the label for day or Unlabeled.
func (c RegimeCalendar) Lookup(day time.Time) RegimeLabel {
	return c[dayOf(day)]
}

// Band is a half-open interval [Min, Max) over the standardized range-diff.
type Band struct {
	Min float64
	Max float64 // +Inf for an open upper band
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v < b.Max
}

// Label formats the band as "[0.090,0.115)" or "[0.115,inf)".
func (b Band) Label() string {
	upper := "inf"
	if !math.IsInf(b.Max, 1) {
		upper = strconv.FormatFloat(b.Max, 'f', 3, 64)
	}
	return "[" + strconv.FormatFloat(b.Min, 'f', 3, 64) + "," + upper + ")"
}
