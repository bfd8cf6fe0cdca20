package repository

import (
	"context"
	"errors"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	"RangeBreak/pkg/cache"
	applogger "RangeBreak/pkg/logger"
)

const barsNamespace = "bars"

// CachedBarSource serves series from a cache and falls back to the wrapped source.
// Cache errors only cost a reload; they never fail a load.
type CachedBarSource struct {
	next  domrepo.BarSource
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.BarSource = (*CachedBarSource)(nil)

func NewCachedBarSource(next domrepo.BarSource, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedBarSource {
	return &CachedBarSource{next: next, cache: c, ttl: ttl, l: l}
}

func (s *CachedBarSource) LoadSeries(ctx context.Context, code string) (*models.Series, error) {
	key := cache.Key(barsNamespace, code)

	var recs []barRecord
	err := s.cache.Get(ctx, key, &recs)
	if err == nil {
		return toSeries(code, recs)
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("bar cache read failed", applogger.String("code", code), applogger.Error(err))
	}

	series, err := s.next.LoadSeries(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, toRecords(series.Bars()), s.ttl); err != nil {
		s.l.Warn("bar cache write failed", applogger.String("code", code), applogger.Error(err))
	}
	return series, nil
}

// Invalidate drops every cached series.
func (s *CachedBarSource) Invalidate(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, cache.Pattern(barsNamespace))
}
