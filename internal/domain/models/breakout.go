package models

import (
	"fmt"
	"time"
)

// Direction is the breakout side of an anchor day.
type Direction uint8

const (
	Control Direction = iota
	Long
	Short
)

var directionNames = [...]string{Control: "control", Long: "long", Short: "short"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Valid reports whether d is one of Long, Short or Control.
func (d Direction) Valid() bool {
	return d <= Short
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	for i, name := range directionNames {
		if name == string(b) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}

// Status refines Direction with failed breakouts: the day's high (low) pierced
// the prior range but the close did not.
type Status uint8

const (
	NoChange Status = iota
	BreakoutResistance
	FailedBreakoutResistance
	FailedBreakoutSupport
	BreakoutSupport
)

var statusNames = [...]string{
	NoChange:                 "no_change",
	BreakoutResistance:       "breakout_resistance",
	FailedBreakoutResistance: "failed_breakout_resistance",
	FailedBreakoutSupport:    "failed_breakout_support",
	BreakoutSupport:          "breakout_support",
}

// Statuses lists every status in report order.
var Statuses = []Status{
	BreakoutResistance, FailedBreakoutResistance, NoChange, FailedBreakoutSupport, BreakoutSupport,
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Direction maps the status onto the trade side used by the simulator.
func (s Status) Direction() Direction {
	switch s {
	case BreakoutResistance:
		return Long
	case BreakoutSupport:
		return Short
	default:
		return Control
	}
}

// StopDistance is the stop-loss distance for one retracement fraction.
type StopDistance struct {
	Fraction float64 `json:"fraction"`
	Distance float64 `json:"distance"`
}

// Outcome is the simulated normalized return for one (horizon, stop fraction) pair.
// -1.0 means the stop was hit.
type Outcome struct {
	Horizon      int     `json:"horizon"`
	StopFraction float64 `json:"stop_fraction"`
	Return       float64 `json:"return"`
	StoppedOut   bool    `json:"stopped_out"`
}

// Sizing translates the capital unit into a share count for the anchor day.
type Sizing struct {
	ATR             float64 `json:"atr"`
	Units           int64   `json:"units"`
	RequiredCapital int64   `json:"required_capital"`
}

// BreakoutEvent is the classification of one anchor day plus its simulated outcomes.
type BreakoutEvent struct {
	Instrument string         `json:"instrument"`
	AnchorDate time.Time      `json:"anchor_date"`
	Direction  Direction      `json:"direction"`
	Status     Status         `json:"status"`
	Close      float64        `json:"close"`
	PrevHigh   float64        `json:"prev_high"`
	PrevLow    float64        `json:"prev_low"`
	Stops      []StopDistance `json:"stops"`
	RangeDiff  float64        `json:"standardized_range_diff"`
	Sizing     Sizing         `json:"sizing"`
	Outcomes   []Outcome      `json:"outcomes"`
}

// StopAt returns the stop distance for fraction f.
func (e *BreakoutEvent) StopAt(f float64) (float64, bool) {
	for _, s := range e.Stops {
		if s.Fraction == f {
			return s.Distance, true
		}
	}
	return 0, false
}

// OutcomeAt returns the outcome for (horizon, fraction) if it was defined.
func (e *BreakoutEvent) OutcomeAt(horizon int, f float64) (Outcome, bool) {
	for _, o := range e.Outcomes {
		if o.Horizon == horizon && o.StopFraction == f {
			return o, true
		}
	}
	return Outcome{}, false
}
