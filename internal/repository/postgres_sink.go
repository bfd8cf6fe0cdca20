package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	pkgpg "RangeBreak/pkg/postgres"

	"github.com/jmoiron/sqlx"
)

// PostgresSchema is the DDL for PostgresResultStore.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id       TEXT PRIMARY KEY,
		started_at   TIMESTAMPTZ NOT NULL,
		period_from  DATE NOT NULL,
		period_to    DATE NOT NULL,
		capital_unit DOUBLE PRECISION NOT NULL,
		instruments  INTEGER NOT NULL,
		events       INTEGER NOT NULL,
		failed       INTEGER NOT NULL,
		issues       INTEGER NOT NULL,
		unlabeled    INTEGER NOT NULL,
		out_of_band  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS breakout_events (
		run_id           TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
		instrument       TEXT NOT NULL,
		anchor_date      DATE NOT NULL,
		direction        TEXT NOT NULL,
		status           TEXT NOT NULL,
		close            DOUBLE PRECISION NOT NULL,
		range_diff       DOUBLE PRECISION NOT NULL,
		atr              DOUBLE PRECISION NOT NULL,
		units            BIGINT NOT NULL,
		required_capital BIGINT NOT NULL,
		PRIMARY KEY (run_id, instrument, anchor_date)
	)`,
	`CREATE TABLE IF NOT EXISTS bucket_stats (
		run_id        TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
		status        TEXT NOT NULL,
		horizon       SMALLINT NOT NULL,
		stop_fraction DOUBLE PRECISION NOT NULL,
		regime        TEXT NOT NULL,
		band          TEXT NOT NULL,
		n             INTEGER NOT NULL,
		state         TEXT NOT NULL,
		mean          DOUBLE PRECISION,
		t_stat        DOUBLE PRECISION,
		p_value       DOUBLE PRECISION,
		significant   BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, status, horizon, stop_fraction, regime, band)
	)`,
}

// PostgresResultStore keeps run summaries, events and bucket statistics.
type PostgresResultStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ domrepo.RunSink = (*PostgresResultStore)(nil)

func NewPostgresResultStore(c *pkgpg.Client, timeout time.Duration) *PostgresResultStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresResultStore{db: c.DB(), timeout: timeout}
}

func (s *PostgresResultStore) Name() string { return "postgres" }

type runRow struct {
	RunID       string    `db:"run_id"`
	StartedAt   time.Time `db:"started_at"`
	From        time.Time `db:"period_from"`
	To          time.Time `db:"period_to"`
	CapitalUnit float64   `db:"capital_unit"`
	Instruments int       `db:"instruments"`
	Events      int       `db:"events"`
	Failed      int       `db:"failed"`
	Issues      int       `db:"issues"`
	Unlabeled   int       `db:"unlabeled"`
	OutOfBand   int       `db:"out_of_band"`
}

type eventRow struct {
	RunID           string    `db:"run_id"`
	Instrument      string    `db:"instrument"`
	AnchorDate      time.Time `db:"anchor_date"`
	Direction       string    `db:"direction"`
	Status          string    `db:"status"`
	Close           float64   `db:"close"`
	RangeDiff       float64   `db:"range_diff"`
	ATR             float64   `db:"atr"`
	Units           int64     `db:"units"`
	RequiredCapital int64     `db:"required_capital"`
}

type bucketRow struct {
	RunID        string          `db:"run_id"`
	Status       string          `db:"status"`
	Horizon      int             `db:"horizon"`
	StopFraction float64         `db:"stop_fraction"`
	Regime       string          `db:"regime"`
	Band         string          `db:"band"`
	N            int             `db:"n"`
	State        string          `db:"state"`
	Mean         sql.NullFloat64 `db:"mean"`
	TStat        sql.NullFloat64 `db:"t_stat"`
	PValue       sql.NullFloat64 `db:"p_value"`
	Significant  bool            `db:"significant"`
}

const (
	insertRun = `INSERT INTO backtest_runs
		(run_id, started_at, period_from, period_to, capital_unit, instruments, events, failed, issues, unlabeled, out_of_band)
		VALUES (:run_id, :started_at, :period_from, :period_to, :capital_unit, :instruments, :events, :failed, :issues, :unlabeled, :out_of_band)`
	insertEvents = `INSERT INTO breakout_events
		(run_id, instrument, anchor_date, direction, status, close, range_diff, atr, units, required_capital)
		VALUES (:run_id, :instrument, :anchor_date, :direction, :status, :close, :range_diff, :atr, :units, :required_capital)`
	insertBuckets = `INSERT INTO bucket_stats
		(run_id, status, horizon, stop_fraction, regime, band, n, state, mean, t_stat, p_value, significant)
		VALUES (:run_id, :status, :horizon, :stop_fraction, :regime, :band, :n, :state, :mean, :t_stat, :p_value, :significant)`
)

// batchRows keeps each bulk insert under the 65535 parameter limit.
const batchRows = 1000

// Write stores the run in one transaction.
func (s *PostgresResultStore) Write(ctx context.Context, run *models.Run) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, rep := run.Result, run.Report
	if _, err := tx.NamedExecContext(ctx, insertRun, runRow{
		RunID:       run.ID,
		StartedAt:   run.StartedAt,
		From:        res.From,
		To:          res.To,
		CapitalUnit: res.CapitalUnit,
		Instruments: res.Instruments,
		Events:      len(res.Events),
		Failed:      len(res.Failed),
		Issues:      len(res.Issues),
		Unlabeled:   rep.Unlabeled,
		OutOfBand:   rep.OutOfBand,
	}); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	events := make([]eventRow, len(res.Events))
	for i, ev := range res.Events {
		events[i] = eventRow{
			RunID:           run.ID,
			Instrument:      ev.Instrument,
			AnchorDate:      ev.AnchorDate,
			Direction:       ev.Direction.String(),
			Status:          ev.Status.String(),
			Close:           ev.Close,
			RangeDiff:       ev.RangeDiff,
			ATR:             ev.Sizing.ATR,
			Units:           ev.Sizing.Units,
			RequiredCapital: ev.Sizing.RequiredCapital,
		}
	}
	if err := namedBatches(ctx, tx, insertEvents, events); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}

	buckets := make([]bucketRow, len(rep.Buckets))
	for i, b := range rep.Buckets {
		buckets[i] = bucketRow{
			RunID:        run.ID,
			Status:       b.Status.String(),
			Horizon:      b.Horizon,
			StopFraction: b.StopFraction,
			Regime:       b.Regime.String(),
			Band:         b.Band,
			N:            b.N,
			State:        string(b.State),
			Mean:         nullable(b.Mean),
			TStat:        nullable(b.TStat),
			PValue:       nullable(b.PValue),
			Significant:  b.Significant,
		}
	}
	if err := namedBatches(ctx, tx, insertBuckets, buckets); err != nil {
		return fmt.Errorf("insert buckets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func namedBatches[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for from := 0; from < len(rows); from += batchRows {
		to := min(from+batchRows, len(rows))
		if _, err := tx.NamedExecContext(ctx, query, rows[from:to]); err != nil {
			return err
		}
	}
	return nil
}
