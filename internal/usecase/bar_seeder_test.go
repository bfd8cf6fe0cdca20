package usecase

import (
	"context"
	"errors"
	"testing"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	fakeBars
	stored map[string][]models.Bar
	err    error
}

func (m *memoryStore) StoreBars(_ context.Context, code string, bars []models.Bar) error {
	if m.err != nil {
		return m.err
	}
	if m.stored == nil {
		m.stored = map[string][]models.Bar{}
	}
	m.stored[code] = bars
	return nil
}

func TestBarSeeder_Seed(t *testing.T) {
	src := &fakeBars{series: map[string]*models.Series{
		"7203": breakoutSeries(t, "7203", longAnchor),
		"6758": flatSeries(t, "6758"),
	}}
	dst := &memoryStore{}

	rep, err := NewBarSeeder(src, dst, logger.Nop()).Seed(context.Background(), instruments("7203", "0000", "6758"))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Instruments)
	assert.Equal(t, 164, rep.Bars)
	assert.Equal(t, []string{"0000"}, rep.Missing)
	assert.Len(t, dst.stored["7203"], 82)
}

func TestBarSeeder_Errors(t *testing.T) {
	src := &fakeBars{
		series: map[string]*models.Series{"7203": flatSeries(t, "7203")},
		errs:   map[string]error{"BAD": errBroken},
	}

	_, err := NewBarSeeder(src, nil, logger.Nop()).Seed(context.Background(), instruments("7203"))
	assert.ErrorIs(t, err, ErrNoBarStore)

	_, err = NewBarSeeder(src, &memoryStore{}, logger.Nop()).Seed(context.Background(), instruments("BAD"))
	assert.ErrorIs(t, err, errBroken)

	full := errors.New("disk full")
	_, err = NewBarSeeder(src, &memoryStore{err: full}, logger.Nop()).Seed(context.Background(), instruments("7203"))
	assert.ErrorIs(t, err, full)
}
