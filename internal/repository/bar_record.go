package repository

import (
	"fmt"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/util"
)

// barRecord is the on-disk and over-the-wire shape of a daily bar. Dates are
// plain YYYY-MM-DD strings.
type barRecord struct {
	Date          string   `json:"date"`
	Open          float64  `json:"open"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	Close         float64  `json:"close"`
	MorningClose  *float64 `json:"morning_close,omitempty"`
	AfternoonOpen *float64 `json:"afternoon_open,omitempty"`
}

func toSeries(code string, recs []barRecord) (*models.Series, error) {
	bars := make([]models.Bar, len(recs))
	for i, r := range recs {
		d, err := util.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", code, i, err)
		}
		bars[i] = models.Bar{
			Date:          d,
			Open:          r.Open,
			High:          r.High,
			Low:           r.Low,
			Close:         r.Close,
			MorningClose:  r.MorningClose,
			AfternoonOpen: r.AfternoonOpen,
		}
	}
	return models.NewSeries(code, bars)
}

func toRecords(bars []models.Bar) []barRecord {
	recs := make([]barRecord, len(bars))
	for i, b := range bars {
		recs[i] = barRecord{
			Date:          b.Date.Format(util.DateLayout),
			Open:          b.Open,
			High:          b.High,
			Low:           b.Low,
			Close:         b.Close,
			MorningClose:  b.MorningClose,
			AfternoonOpen: b.AfternoonOpen,
		}
	}
	return recs
}
