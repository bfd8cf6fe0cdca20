package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/usecase"
	xhttp "RangeBreak/pkg/http"
	"RangeBreak/pkg/http/middleware"
	xlogger "RangeBreak/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBacktests struct {
	run     *models.Run
	running bool
	started []usecase.BacktestParams
}

func (f *fakeBacktests) Latest() (*models.Run, bool) { return f.run, f.run != nil }
func (f *fakeBacktests) Running() bool               { return f.running }
func (f *fakeBacktests) LastError() error            { return nil }

func (f *fakeBacktests) Start(p usecase.BacktestParams) (string, error) {
	if f.running {
		return "", usecase.ErrRunInProgress
	}
	f.started = append(f.started, p)
	return "run-2", nil
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testRun() *models.Run {
	mean, tstat, p := 0.267, 6.047, 0.001
	sig := models.BucketStat{
		BucketKey: models.BucketKey{Status: models.BreakoutResistance, Horizon: 5, StopFraction: 0.38, Regime: models.StrongPositive, Band: "[0.000,0.090)"},
		N:         6, State: models.BucketOK, Mean: &mean, TStat: &tstat, PValue: &p, Significant: true,
	}
	empty := models.BucketStat{
		BucketKey: models.BucketKey{Status: models.BreakoutSupport, Horizon: 20, StopFraction: 0.62, Regime: models.MildNegative, Band: "[0.115,+inf)"},
		State:     models.BucketNoData,
	}
	return &models.Run{
		ID: "run-1",
		Result: &models.BacktestResult{Events: []models.BreakoutEvent{
			{Instrument: "7203", AnchorDate: day, Status: models.BreakoutResistance, Direction: models.Long},
			{Instrument: "7203", AnchorDate: day.AddDate(0, 0, 7), Status: models.BreakoutSupport, Direction: models.Short},
			{Instrument: "6758", AnchorDate: day, Status: models.BreakoutResistance, Direction: models.Long},
		}},
		Report:  &models.Report{RunID: "run-1", From: day, To: day.AddDate(0, 1, 0), Events: 3, Buckets: []models.BucketStat{sig, empty}},
		Regimes: []models.RegimeDay{{Date: day, GapRatio: 1.012, Label: models.StrongPositive}},
	}
}

func newTestServer(svc Backtests) *echo.Echo {
	return xhttp.NewServer(xlogger.Nop(), []xhttp.Handler{NewReportEchoHandler(xlogger.Nop(), svc, 1e6, nil)}).Echo()
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestReportEcho_Health(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeBacktests{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportEcho_NoRunYet(t *testing.T) {
	e := newTestServer(&fakeBacktests{})
	for _, path := range []string{"/api/v1/report", "/api/v1/report/buckets", "/api/v1/events", "/api/v1/regimes", "/api/v1/report/markdown"} {
		rec, _ := do(t, e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestReportEcho_Report(t *testing.T) {
	rec, env := do(t, newTestServer(&fakeBacktests{run: testRun()}), http.MethodGet, "/api/v1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rep models.Report
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, "run-1", rep.RunID)
	assert.Len(t, rep.Buckets, 2)
}

func TestReportEcho_Buckets(t *testing.T) {
	e := newTestServer(&fakeBacktests{run: testRun()})

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?significant_only=true", 1},
		{"?with_data=true", 1},
		{"?status=breakout_support", 1},
		{"?regime=strong_positive&horizon=5&stop=0.38", 1},
		{"?horizon=10", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, env := do(t, e, http.MethodGet, "/api/v1/report/buckets"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var list struct {
				Rows  []models.BucketStat `json:"rows"`
				Total int64               `json:"total"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &list))
			assert.Len(t, list.Rows, tt.want)
			assert.EqualValues(t, tt.want, list.Total)
		})
	}
}

func TestReportEcho_BucketsValidation(t *testing.T) {
	e := newTestServer(&fakeBacktests{run: testRun()})
	for _, q := range []string{"?status=sideways", "?regime=unlabeled", "?stop=1.5", "?horizon=-1"} {
		rec, _ := do(t, e, http.MethodGet, "/api/v1/report/buckets"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestReportEcho_Events(t *testing.T) {
	e := newTestServer(&fakeBacktests{run: testRun()})

	rec, env := do(t, e, http.MethodGet, "/api/v1/events?instrument=7203&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.BreakoutEvent `json:"rows"`
		Total int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Rows, 1)
	assert.EqualValues(t, 2, list.Total)

	rec, _ = do(t, e, http.MethodGet, "/api/v1/events?limit=0", "")
	assert.Equal(t, http.StatusOK, rec.Code, "zero limit falls back to the default")

	rec, _ = do(t, e, http.MethodGet, "/api/v1/events?limit=10000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportEcho_Markdown(t *testing.T) {
	rec, _ := do(t, newTestServer(&fakeBacktests{run: testRun()}), http.MethodGet, "/api/v1/report/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/markdown")
	assert.Contains(t, rec.Body.String(), "run-1")
}

func TestReportEcho_StartBacktest(t *testing.T) {
	svc := &fakeBacktests{}
	e := newTestServer(svc)

	rec, env := do(t, e, http.MethodPost, "/api/v1/backtests", `{"from":"2024-01-04","to":"2024-06-28","instruments":["7203"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"run_id":"run-2"}`, string(env.Data))

	require.Len(t, svc.started, 1)
	assert.Equal(t, 1e6, svc.started[0].CapitalUnit)
	assert.Equal(t, []string{"7203"}, svc.started[0].Instruments)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), svc.started[0].To)
}

func TestReportEcho_StartBacktestRejects(t *testing.T) {
	e := newTestServer(&fakeBacktests{})
	bodies := []string{
		`{"to":"2024-06-28"}`,
		`{"from":"2024/01/04","to":"2024-06-28"}`,
		`{"from":"2024-07-01","to":"2024-06-28"}`,
		`{"from":"2024-01-04","to":"2024-06-28","capital_unit":-5}`,
		`{"from":"2024-01-04","to":"2024-06-28","instruments":[""]}`,
	}
	for _, body := range bodies {
		rec, _ := do(t, e, http.MethodPost, "/api/v1/backtests", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestReportEcho_StartBacktestConflict(t *testing.T) {
	svc := &fakeBacktests{running: true}
	e := newTestServer(svc)

	rec, _ := do(t, e, http.MethodPost, "/api/v1/backtests", `{"from":"2024-01-04","to":"2024-06-28"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/v1/backtests/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"running":true}`, string(env.Data))
}

func TestReportEcho_StartBacktestRateLimited(t *testing.T) {
	h := NewReportEchoHandler(xlogger.Nop(), &fakeBacktests{}, 1e6, middleware.NewKeyedLimiter(0.001, 1))
	e := xhttp.NewServer(xlogger.Nop(), []xhttp.Handler{h}).Echo()

	rec, _ := do(t, e, http.MethodPost, "/api/v1/backtests", `{"from":"2024-01-04","to":"2024-06-28"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/v1/backtests", `{"from":"2024-01-04","to":"2024-06-28"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
