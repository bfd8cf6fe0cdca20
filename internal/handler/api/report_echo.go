package api

import (
	"bytes"
	"errors"
	"net/http"

	"RangeBreak/internal/domain/models"
	"RangeBreak/internal/services/report"
	"RangeBreak/internal/usecase"
	xhttp "RangeBreak/pkg/http"
	"RangeBreak/pkg/http/middleware"
	xlogger "RangeBreak/pkg/logger"
	"RangeBreak/pkg/util"

	"github.com/labstack/echo/v4"
)

// Backtests is the part of usecase.BacktestService the API needs.
type Backtests interface {
	Latest() (*models.Run, bool)
	Running() bool
	LastError() error
	Start(p usecase.BacktestParams) (string, error)
}

// ReportEchoHandler serves the latest report and accepts new runs.
type ReportEchoHandler struct {
	logger  *xlogger.Logger
	svc     Backtests
	capital float64
	limiter *middleware.KeyedLimiter
}

// NewReportEchoHandler creates the handler. capital is used when a request
// leaves capital_unit unset; a nil limiter leaves POST unthrottled.
func NewReportEchoHandler(logger *xlogger.Logger, svc Backtests, capital float64, limiter *middleware.KeyedLimiter) *ReportEchoHandler {
	return &ReportEchoHandler{logger: logger, svc: svc, capital: capital, limiter: limiter}
}

func (h *ReportEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/report", h.Report)
	g.GET("/report/markdown", h.Markdown)
	g.GET("/report/buckets", h.Buckets)
	g.GET("/events", h.Events)
	g.GET("/regimes", h.Regimes)
	g.GET("/backtests/status", h.Status)
	if h.limiter != nil {
		g.POST("/backtests", h.StartBacktest, middleware.RateLimit(h.limiter))
	} else {
		g.POST("/backtests", h.StartBacktest)
	}
}

type bucketsRequest struct {
	Status          string  `query:"status" validate:"omitempty,oneof=no_change breakout_resistance failed_breakout_resistance failed_breakout_support breakout_support"`
	Horizon         int     `query:"horizon" validate:"gte=0"`
	Stop            float64 `query:"stop" validate:"gte=0,lt=1"`
	Regime          string  `query:"regime" validate:"omitempty,oneof=strong_positive moderate_positive mild_positive mild_negative moderate_negative strong_negative"`
	SignificantOnly bool    `query:"significant_only"`
	WithData        bool    `query:"with_data"`
}

type eventsRequest struct {
	Instrument string `query:"instrument"`
	Status     string `query:"status" validate:"omitempty,oneof=no_change breakout_resistance failed_breakout_resistance failed_breakout_support breakout_support"`
	Limit      int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type backtestRequest struct {
	From        string   `json:"from" validate:"required,datetime=2006-01-02"`
	To          string   `json:"to" validate:"required,datetime=2006-01-02"`
	CapitalUnit float64  `json:"capital_unit" validate:"gte=0"`
	Instruments []string `json:"instruments" validate:"omitempty,dive,required"`
}

type backtestStatus struct {
	Running   bool   `json:"running"`
	LatestRun string `json:"latest_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (h *ReportEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func noRun(c echo.Context) error {
	return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no backtest has completed yet"))
}

func (h *ReportEchoHandler) Report(c echo.Context) error {
	run, ok := h.svc.Latest()
	if !ok {
		return noRun(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, run.Report)
}

func (h *ReportEchoHandler) Markdown(c echo.Context) error {
	run, ok := h.svc.Latest()
	if !ok {
		return noRun(c)
	}
	var buf bytes.Buffer
	if err := report.WriteMarkdown(&buf, run); err != nil {
		h.logger.Error("render markdown", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", buf.Bytes())
}

func (h *ReportEchoHandler) Buckets(c echo.Context) error {
	req := &bucketsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, ok := h.svc.Latest()
	if !ok {
		return noRun(c)
	}

	f := report.Filter{
		Horizon:         req.Horizon,
		StopFraction:    req.Stop,
		SignificantOnly: req.SignificantOnly,
		WithData:        req.WithData,
	}
	if req.Status != "" {
		var s models.Status
		if err := s.UnmarshalText([]byte(req.Status)); err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
		}
		f.Status = &s
	}
	if req.Regime != "" {
		var r models.RegimeLabel
		if err := r.UnmarshalText([]byte(req.Regime)); err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
		}
		f.Regime = &r
	}

	rows := report.Buckets(run.Report, f)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ReportEchoHandler) Events(c echo.Context) error {
	req := &eventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, ok := h.svc.Latest()
	if !ok {
		return noRun(c)
	}

	rows := make([]models.BreakoutEvent, 0, req.Limit)
	var total int64
	for _, ev := range run.Result.Events {
		if req.Instrument != "" && ev.Instrument != req.Instrument {
			continue
		}
		if req.Status != "" && ev.Status.String() != req.Status {
			continue
		}
		total++
		if len(rows) < req.Limit {
			rows = append(rows, ev)
		}
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *ReportEchoHandler) Regimes(c echo.Context) error {
	run, ok := h.svc.Latest()
	if !ok {
		return noRun(c)
	}
	return xhttp.ListResponse(c, run.Regimes, int64(len(run.Regimes)))
}

func (h *ReportEchoHandler) Status(c echo.Context) error {
	st := backtestStatus{Running: h.svc.Running()}
	if run, ok := h.svc.Latest(); ok {
		st.LatestRun = run.ID
	}
	if err := h.svc.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *ReportEchoHandler) StartBacktest(c echo.Context) error {
	req := &backtestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, err := util.ParseDate(req.From)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from: %v", err))
	}
	to, err := util.ParseDate(req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to: %v", err))
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from %s is after to %s", req.From, req.To))
	}
	capital := req.CapitalUnit
	if capital == 0 {
		capital = h.capital
	}

	id, err := h.svc.Start(usecase.BacktestParams{From: from, To: to, CapitalUnit: capital, Instruments: req.Instruments})
	if errors.Is(err, usecase.ErrRunInProgress) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("%v", err))
	}
	if err != nil {
		h.logger.Error("start backtest", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("backtest accepted", xlogger.String("run_id", id), xlogger.String("from", req.From), xlogger.String("to", req.To))
	return xhttp.AcceptedResponse(c, map[string]string{"run_id": id})
}
