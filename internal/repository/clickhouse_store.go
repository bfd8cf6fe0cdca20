package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	pkgch "RangeBreak/pkg/clickhouse"
	applogger "RangeBreak/pkg/logger"
)

const chunkSize = 2000

// ClickHouseSchema returns the DDL for the bar, event and bucket tables in database.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_bars (
            code String,
            date Date,
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            morning_close Nullable(Float64),
            afternoon_open Nullable(Float64)
        ) ENGINE = ReplacingMergeTree ORDER BY (code, date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.breakout_outcomes (
            run_id String,
            instrument String,
            anchor_date Date,
            direction LowCardinality(String),
            status LowCardinality(String),
            close Float64,
            range_diff Float64,
            stop_distance Float64,
            units Int64,
            required_capital Int64,
            horizon UInt8,
            stop_fraction Float64,
            return Float64,
            stopped_out UInt8
        ) ENGINE = MergeTree ORDER BY (run_id, instrument, anchor_date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bucket_stats (
            run_id String,
            generated_at DateTime,
            status LowCardinality(String),
            horizon UInt8,
            stop_fraction Float64,
            regime LowCardinality(String),
            band String,
            n UInt32,
            state LowCardinality(String),
            mean Nullable(Float64),
            t_stat Nullable(Float64),
            p_value Nullable(Float64),
            significant UInt8
        ) ENGINE = MergeTree ORDER BY (run_id, status, horizon, stop_fraction, regime, band)`, database),
	}
}

// ClickHouseStore reads and writes daily bars and persists runs in ClickHouse.
type ClickHouseStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

var (
	_ domrepo.BarStore = (*ClickHouseStore)(nil)
	_ domrepo.RunSink  = (*ClickHouseStore)(nil)
)

func NewClickHouseStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseStore {
	return newClickHouseStore(ch.DB(), ch.Database(), l)
}

func newClickHouseStore(db *sql.DB, database string, l *applogger.Logger) *ClickHouseStore {
	return &ClickHouseStore{db: db, database: database, l: l}
}

func (s *ClickHouseStore) Name() string { return "clickhouse" }

// LoadSeries returns every stored bar for code in date order.
func (s *ClickHouseStore) LoadSeries(ctx context.Context, code string) (*models.Series, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, open, high, low, close, morning_close, afternoon_open
        FROM %s.daily_bars FINAL
        WHERE code = ?
        ORDER BY date ASC`, s.database)
	rows, err := s.db.QueryContext(ctx, q, code)
	if err != nil {
		s.l.Error("clickhouse load_series query error", applogger.String("code", code), applogger.Error(err))
		return nil, fmt.Errorf("load series %s: %w", code, err)
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, 1024)
	for rows.Next() {
		var (
			b      models.Bar
			mc, ao sql.NullFloat64
		)
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &mc, &ao); err != nil {
			return nil, fmt.Errorf("scan bar %s: %w", code, err)
		}
		if mc.Valid {
			b.MorningClose = &mc.Float64
		}
		if ao.Valid {
			b.AfternoonOpen = &ao.Float64
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", code, domrepo.ErrSeriesNotFound)
	}

	s.l.Debug("clickhouse load_series ok",
		applogger.String("code", code),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return models.NewSeries(code, bars)
}

// StoreBars inserts bars in multi-row chunks. Re-inserting a day replaces it
// once ClickHouse merges the parts.
func (s *ClickHouseStore) StoreBars(ctx context.Context, code string, bars []models.Bar) error {
	const cols = 8
	for from := 0; from < len(bars); from += chunkSize {
		to := min(from+chunkSize, len(bars))
		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*cols)
		for _, b := range bars[from:to] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, code, b.Date, b.Open, b.High, b.Low, b.Close, nullable(b.MorningClose), nullable(b.AfternoonOpen))
		}
		q := fmt.Sprintf("INSERT INTO %s.daily_bars (code, date, open, high, low, close, morning_close, afternoon_open) VALUES %s",
			s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store bars %s: %w", code, err)
		}
	}
	return nil
}

// Write stores one row per event outcome and one row per bucket.
func (s *ClickHouseStore) Write(ctx context.Context, run *models.Run) error {
	if err := s.writeOutcomes(ctx, run); err != nil {
		return err
	}
	return s.writeBuckets(ctx, run)
}

func (s *ClickHouseStore) writeOutcomes(ctx context.Context, run *models.Run) error {
	type row [14]interface{}
	var rows []row
	for i := range run.Result.Events {
		ev := &run.Result.Events[i]
		for _, o := range ev.Outcomes {
			d, _ := ev.StopAt(o.StopFraction)
			rows = append(rows, row{
				run.ID, ev.Instrument, ev.AnchorDate, ev.Direction.String(), ev.Status.String(),
				ev.Close, ev.RangeDiff, d, ev.Sizing.Units, ev.Sizing.RequiredCapital,
				uint8(o.Horizon), o.StopFraction, o.Return, boolToUint8(o.StoppedOut),
			})
		}
	}

	for from := 0; from < len(rows); from += chunkSize {
		to := min(from+chunkSize, len(rows))
		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*len(row{}))
		for _, r := range rows[from:to] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, r[:]...)
		}
		q := fmt.Sprintf(`INSERT INTO %s.breakout_outcomes (run_id, instrument, anchor_date, direction, status, close,
            range_diff, stop_distance, units, required_capital, horizon, stop_fraction, return, stopped_out) VALUES %s`,
			s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store outcomes: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStore) writeBuckets(ctx context.Context, run *models.Run) error {
	buckets := run.Report.Buckets
	if len(buckets) == 0 {
		return nil
	}
	values := make([]string, 0, len(buckets))
	args := make([]interface{}, 0, len(buckets)*13)
	for _, b := range buckets {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			run.ID, run.Report.GeneratedAt, b.Status.String(), uint8(b.Horizon), b.StopFraction,
			b.Regime.String(), b.Band, uint32(b.N), string(b.State),
			nullable(b.Mean), nullable(b.TStat), nullable(b.PValue), boolToUint8(b.Significant),
		)
	}
	q := fmt.Sprintf(`INSERT INTO %s.bucket_stats (run_id, generated_at, status, horizon, stop_fraction, regime, band,
            n, state, mean, t_stat, p_value, significant) VALUES %s`, s.database, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store buckets: %w", err)
	}
	return nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
