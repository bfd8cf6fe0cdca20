package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	pkgpg "RangeBreak/pkg/postgres"
	"RangeBreak/pkg/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStoredRun() *models.Run {
	mean, tstat, p := 0.267, 6.047, 0.001
	key := models.BucketKey{Status: models.BreakoutResistance, Horizon: 5, StopFraction: 0.38, Regime: models.StrongPositive, Band: "[0.000,0.090)"}
	empty := key
	empty.Regime = models.MildNegative
	return &models.Run{
		ID:        "run-1",
		StartedAt: d0,
		Result: &models.BacktestResult{
			From: d0, To: d0.AddDate(0, 1, 0), CapitalUnit: 1e6, Instruments: 1,
			Events: []models.BreakoutEvent{{
				Instrument: "7203", AnchorDate: d0, Direction: models.Long, Status: models.BreakoutResistance,
				Close: 110, RangeDiff: 0.05,
				Stops:    []models.StopDistance{{Fraction: 0.38, Distance: 3.8}},
				Sizing:   models.Sizing{ATR: 3.6, Units: 277777, RequiredCapital: 30555470},
				Outcomes: []models.Outcome{{Horizon: 5, StopFraction: 0.38, Return: -1, StoppedOut: true}},
			}},
		},
		Report: &models.Report{
			RunID: "run-1", GeneratedAt: d0, From: d0, To: d0.AddDate(0, 1, 0), Events: 1,
			Buckets: []models.BucketStat{
				{BucketKey: key, N: 6, State: models.BucketOK, Mean: &mean, TStat: &tstat, PValue: &p, Significant: true},
				{BucketKey: empty, State: models.BucketNoData},
			},
		},
	}
}

func TestClickHouseStore_LoadSeries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := newClickHouseStore(db, "rangebreak", logger.Nop())

	rows := sqlmock.NewRows([]string{"date", "open", "high", "low", "close", "morning_close", "afternoon_open"}).
		AddRow(d0, 100.0, 102.0, 99.0, 101.0, 101.5, nil).
		AddRow(d0.AddDate(0, 0, 1), 101.0, 103.0, 100.0, 102.0, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rangebreak.daily_bars FINAL")).WithArgs("7203").WillReturnRows(rows)

	s, err := store.LoadSeries(context.Background(), "7203")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	require.NotNil(t, s.At(0).MorningClose)
	assert.Equal(t, 101.5, *s.At(0).MorningClose)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseStore_LoadSeriesEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("daily_bars").WillReturnRows(sqlmock.NewRows([]string{"date", "open", "high", "low", "close", "morning_close", "afternoon_open"}))
	_, err = newClickHouseStore(db, "rangebreak", logger.Nop()).LoadSeries(context.Background(), "0000")
	assert.ErrorIs(t, err, domrepo.ErrSeriesNotFound)
}

func TestClickHouseStore_Writes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := newClickHouseStore(db, "rangebreak", logger.Nop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rangebreak.daily_bars")).WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.StoreBars(context.Background(), "7203", sampleBars()))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rangebreak.breakout_outcomes")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rangebreak.bucket_stats")).WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.Write(context.Background(), sampleStoredRun()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSchema(t *testing.T) {
	stmts := ClickHouseSchema("rb")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[1], "rb.daily_bars")
}

func newPostgresStore(t *testing.T) (*PostgresResultStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	client := pkgpg.NewClientFromDB(sqlx.NewDb(db, "postgres"))
	return NewPostgresResultStore(client, time.Second), mock
}

func TestPostgresResultStore_Write(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO breakout_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bucket_stats").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), sampleStoredRun()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResultStore_RollsBackOnError(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO breakout_events").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := store.Write(context.Background(), sampleStoredRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert events")
	assert.NoError(t, mock.ExpectationsWereMet())
}
