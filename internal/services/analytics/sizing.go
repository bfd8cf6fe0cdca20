package analytics

import (
	"math"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/services/features"
)

const DefaultATRBars = 5

// Size converts capitalUnit into whole units at the anchor close using the
// ATR of the last atrBars bars: units = floor(capital / ATR),
// required = floor(units * close). A zero ATR sizes to zero units.
func Size(bars []models.Bar, close, capitalUnit float64, atrBars int) models.Sizing {
	atr := features.ATR(bars, atrBars)
	s := models.Sizing{ATR: atr}
	if atr <= 0 || capitalUnit <= 0 {
		return s
	}
	s.Units = int64(math.Floor(capitalUnit / atr))
	s.RequiredCapital = int64(math.Floor(float64(s.Units) * close))
	return s
}
