package analytics

import (
	"math"
	"testing"

	"RangeBreak/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fwd(bars ...models.Bar) []models.Bar { return bars }

func TestSimulate_StopHitOnDayTwo(t *testing.T) {
	s := anchoredSeries(t,
		models.Bar{Open: 100, High: 110, Low: 100, Close: 110},
		models.Bar{Open: 110, High: 111, Low: 109, Close: 110.5},
		models.Bar{Open: 110, High: 110, Low: 100, Close: 104}, // (100-110)/3.8 < -1
		models.Bar{Open: 104, High: 125, Low: 104, Close: 125},
		models.Bar{Open: 125, High: 130, Low: 125, Close: 130},
		models.Bar{Open: 130, High: 135, Low: 130, Close: 135},
		models.Bar{Open: 135, High: 140, Low: 135, Close: 140},
	)
	ev, w, err := classifyAnchor(t, s, 6)
	require.NoError(t, err)
	require.Equal(t, models.Long, ev.Direction)

	d38, _ := ev.StopAt(0.38)
	o, ok, err := Simulate(ev.Direction, w.Forward, d38, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1.0, o.Return)
	assert.True(t, o.StoppedOut)

	outcomes, err := NewStopLossSimulator([]int{5}).SimulateGrid(&ev, w.Forward)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, -1.0, o.Return, "fraction %.2f", o.StopFraction)
	}
}

func TestSimulate_LongCloseReturnRounded(t *testing.T) {
	path := fwd(
		models.Bar{Open: 100, High: 101, Low: 95, Close: 100},
		models.Bar{Open: 100, High: 104, Low: 99, Close: 103},
		models.Bar{Open: 103, High: 113, Low: 102, Close: 112.345},
	)
	o, ok, err := Simulate(models.Long, path, 10, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.23, o.Return)
	assert.False(t, o.StoppedOut)
}

func TestSimulate_ShortSignFlipped(t *testing.T) {
	path := fwd(
		models.Bar{Open: 90, High: 91, Low: 88, Close: 89},
		models.Bar{Open: 89, High: 90, Low: 84, Close: 85},
	)
	o, ok, err := Simulate(models.Short, path, 5, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, o.Return)

	// a rally of more than one distance stops the short out
	path[1].High = 96
	o, _, err = Simulate(models.Short, path, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, o.Return)
}

func TestSimulate_ControlUsesLongExcursion(t *testing.T) {
	path := fwd(
		models.Bar{Open: 100, High: 100, Low: 98, Close: 99},
		models.Bar{Open: 99, High: 99, Low: 97, Close: 98},
	)
	o, _, err := Simulate(models.Control, path, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, -1.0, o.Return)
}

func TestSimulate_BreachAfterHorizonStillStops(t *testing.T) {
	path := make([]models.Bar, 11)
	for i := range path {
		path[i] = models.Bar{Open: 100, High: 102, Low: 99, Close: 101}
	}
	path[8].Low = 80

	o, ok, err := Simulate(models.Long, path, 5, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1.0, o.Return)
}

func TestSimulate_ExactlyMinusOneIsNotAStop(t *testing.T) {
	path := fwd(
		models.Bar{Open: 100, High: 100, Low: 95, Close: 97},
		models.Bar{Open: 97, High: 98, Low: 96, Close: 98},
	)
	o, _, err := Simulate(models.Long, path, 5, 1)
	require.NoError(t, err)
	assert.False(t, o.StoppedOut)
	assert.Equal(t, -0.4, o.Return)
}

func TestSimulate_OmitsUnreachableHorizon(t *testing.T) {
	path := fwd(
		models.Bar{Open: 100, High: 101, Low: 99, Close: 100},
		models.Bar{Open: 100, High: 101, Low: 99, Close: 100},
	)
	_, ok, err := Simulate(models.Long, path, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ev := models.BreakoutEvent{Direction: models.Long, Stops: []models.StopDistance{{Fraction: 0.5, Distance: 1}}}
	outcomes, err := NewStopLossSimulator([]int{1, 5}).SimulateGrid(&ev, path)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].Horizon)
}

func TestSimulate_RejectsDegenerateDistance(t *testing.T) {
	path := fwd(models.Bar{Open: 100, High: 100, Low: 100, Close: 100})
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, ok, err := Simulate(models.Long, path, d, 0)
		assert.ErrorIs(t, err, ErrDegenerateRange, "distance %v", d)
		assert.False(t, ok)
	}
}

func TestStopLossSimulator_Lookahead(t *testing.T) {
	assert.Equal(t, 21, NewStopLossSimulator(nil).Lookahead())
	assert.Equal(t, 6, NewStopLossSimulator([]int{5}).Lookahead())
}

func TestSize(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 9}, {High: 10, Low: 8}, {High: 10, Low: 9.5},
		{High: 10, Low: 9}, {High: 10, Low: 8.6},
	}
	s := Size(bars, 110, 1_000_000, DefaultATRBars)
	assert.Equal(t, 1.2, s.ATR)
	assert.Equal(t, int64(833333), s.Units)
	assert.Equal(t, int64(91666630), s.RequiredCapital)

	flat := []models.Bar{{High: 10, Low: 10}}
	assert.Equal(t, int64(0), Size(flat, 10, 1_000_000, DefaultATRBars).Units)
}
