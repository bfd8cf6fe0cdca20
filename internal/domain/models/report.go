package models

import "time"

// Instrument is one roster entry.
type Instrument struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// InstrumentFailure records an instrument whose series could not be loaded or parsed.
type InstrumentFailure struct {
	Instrument string `json:"instrument"`
	Reason     string `json:"reason"`
}

// DataQualityIssue records an anchor day skipped because its data could not yield a
// defined statistic (zero or NaN stop distance, contradictory breakout).
type DataQualityIssue struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Reason     string    `json:"reason"`
}

// BacktestResult is the driver output for one run.
type BacktestResult struct {
	From        time.Time           `json:"from"`
	To          time.Time           `json:"to"`
	CapitalUnit float64             `json:"capital_unit"`
	Instruments int                 `json:"instruments"`
	Events      []BreakoutEvent     `json:"events"`
	Failed      []InstrumentFailure `json:"failed"`
	Issues      []DataQualityIssue  `json:"data_quality_issues"`
}

// BucketState tells a report reader whether the statistics are defined.
type BucketState string

const (
	BucketOK           BucketState = "ok"
	BucketNoData       BucketState = "no_data"
	BucketInsufficient BucketState = "insufficient_samples"
	BucketZeroVariance BucketState = "zero_variance"
)

// BucketKey identifies one aggregation cell.
type BucketKey struct {
	Status       Status      `json:"status"`
	Horizon      int         `json:"horizon"`
	StopFraction float64     `json:"stop_fraction"`
	Regime       RegimeLabel `json:"regime"`
	Band         string      `json:"band"`
}

// BucketStat is one row of the aggregate report. Mean, TStat and PValue are nil
// whenever State says they are undefined, so an absent value is never confused
// with a computed zero.
type BucketStat struct {
	BucketKey
	N           int         `json:"n"`
	State       BucketState `json:"state"`
	Mean        *float64    `json:"mean"`
	TStat       *float64    `json:"t_stat"`
	PValue      *float64    `json:"p_value"`
	Significant bool        `json:"significant"`
}

// Report is the per-bucket aggregate for one backtest run.
type Report struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	From        time.Time    `json:"from"`
	To          time.Time    `json:"to"`
	Events      int          `json:"events"`
	Unlabeled   int          `json:"unlabeled"`
	OutOfBand   int          `json:"out_of_band"`
	Buckets     []BucketStat `json:"buckets"`
}

// Run bundles everything one backtest produced, for sinks and the report API.
type Run struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Result    *BacktestResult `json:"result"`
	Report    *Report         `json:"report"`
	Regimes   []RegimeDay     `json:"regimes"`
}
