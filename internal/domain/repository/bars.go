package repository

import (
	"context"
	"errors"
	"time"

	"RangeBreak/internal/domain/models"
)

// ErrSeriesNotFound is returned by a BarSource that has no data for an instrument.
var ErrSeriesNotFound = errors.New("series not found")

// BarSource loads the full daily history of one instrument.
type BarSource interface {
	LoadSeries(ctx context.Context, code string) (*models.Series, error)
}

// BarStore persists daily bars, e.g. to seed a ClickHouse table from files.
type BarStore interface {
	BarSource
	StoreBars(ctx context.Context, code string, bars []models.Bar) error
}

// RosterSource lists the instruments a run should cover.
type RosterSource interface {
	LoadRoster(ctx context.Context) ([]models.Instrument, error)
}

// RunSink receives a finished run. Sinks are independent; one failing does
// not stop the others.
type RunSink interface {
	Name() string
	Write(ctx context.Context, run *models.Run) error
}

// Metrics records backtest progress.
type Metrics interface {
	RecordInstrument(outcome string)
	RecordEvents(direction string, n int)
	RecordIssue(kind string)
	RecordLatency(op string, d time.Duration)
	RecordError(op string)
}
