package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var d0 = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

func sampleBars() []models.Bar {
	mc := 101.5
	return []models.Bar{
		{Date: d0, Open: 100, High: 102, Low: 99, Close: 101, MorningClose: &mc},
		{Date: d0.AddDate(0, 0, 1), Open: 101, High: 103, Low: 100, Close: 102},
	}
}

func TestFileBarSource_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewFileBarSource(filepath.Join(t.TempDir(), "bars"))

	require.NoError(t, src.StoreBars(ctx, "7203", sampleBars()))
	s, err := src.LoadSeries(ctx, "7203")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, d0, s.At(0).Date)
	require.NotNil(t, s.At(0).MorningClose)
	assert.Equal(t, 101.5, *s.At(0).MorningClose)
	assert.Nil(t, s.At(1).MorningClose)
}

func TestFileBarSource_Errors(t *testing.T) {
	dir := t.TempDir()
	src := NewFileBarSource(dir)

	_, err := src.LoadSeries(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domrepo.ErrSeriesNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "BAD.json"), []byte(`[{"date":"2024-01-04","open":`), 0o644))
	_, err = src.LoadSeries(context.Background(), "BAD")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "HILO.json"),
		[]byte(`[{"date":"2024-01-04","open":100,"high":99,"low":98,"close":100}]`), 0o644))
	_, err = src.LoadSeries(context.Background(), "HILO")
	assert.ErrorIs(t, err, models.ErrInvalidBar)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "DATE.json"),
		[]byte(`[{"date":"04/01/2024","open":100,"high":100,"low":100,"close":100}]`), 0o644))
	_, err = src.LoadSeries(context.Background(), "DATE")
	assert.Error(t, err)
}

func TestFileRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments:
  - code: "7203"
    name: Toyota Motor
  - code: "6758"
    name: Sony Group
  - code: "7203"
    name: duplicate
`), 0o644))

	got, err := NewFileRoster(path).LoadRoster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Instrument{{Code: "7203", Name: "Toyota Motor"}, {Code: "6758", Name: "Sony Group"}}, got)

	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  - name: nameless\n"), 0o644))
	_, err = NewFileRoster(path).LoadRoster(context.Background())
	assert.ErrorIs(t, err, models.ErrEmptyInstrument)
}
