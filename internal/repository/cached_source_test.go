package repository

import (
	"context"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	"RangeBreak/pkg/cache"
	"RangeBreak/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	bars  []models.Bar
}

func (s *countingSource) LoadSeries(_ context.Context, code string) (*models.Series, error) {
	s.calls++
	return models.NewSeries(code, s.bars)
}

func TestCachedBarSource(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	defer mem.Close()

	next := &countingSource{bars: sampleBars()}
	src := NewCachedBarSource(next, mem, time.Hour, logger.Nop())

	first, err := src.LoadSeries(ctx, "7203")
	require.NoError(t, err)
	second, err := src.LoadSeries(ctx, "7203")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first.Bars(), second.Bars())

	require.NoError(t, src.Invalidate(ctx))
	_, err = src.LoadSeries(ctx, "7203")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
