package usecase

import (
	"context"
	"errors"
	"fmt"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/pkg/logger"
)

var ErrNoBarStore = errors.New("no bar store configured")

// BarSeeder copies series from one source into a bar store, e.g. JSON files
// into ClickHouse before the first run.
type BarSeeder struct {
	from drepo.BarSource
	to   drepo.BarStore
	log  *logger.Logger
}

func NewBarSeeder(from drepo.BarSource, to drepo.BarStore, log *logger.Logger) *BarSeeder {
	return &BarSeeder{from: from, to: to, log: log}
}

// SeedReport counts what a Seed call copied.
type SeedReport struct {
	Instruments int
	Bars        int
	Missing     []string
}

// Seed copies every instrument in codes. Instruments without source data are
// listed as missing; any other error stops the copy.
func (s *BarSeeder) Seed(ctx context.Context, instruments []models.Instrument) (SeedReport, error) {
	var rep SeedReport
	if s.to == nil {
		return rep, ErrNoBarStore
	}
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		series, err := s.from.LoadSeries(ctx, inst.Code)
		if errors.Is(err, drepo.ErrSeriesNotFound) {
			s.log.Warn("seed source missing", logger.String("instrument", inst.Code))
			rep.Missing = append(rep.Missing, inst.Code)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("load %s: %w", inst.Code, err)
		}
		if err := s.to.StoreBars(ctx, inst.Code, series.Bars()); err != nil {
			return rep, fmt.Errorf("store %s: %w", inst.Code, err)
		}
		rep.Instruments++
		rep.Bars += series.Len()
		s.log.Debug("seeded", logger.String("instrument", inst.Code), logger.Int("bars", series.Len()))
	}
	return rep, nil
}
