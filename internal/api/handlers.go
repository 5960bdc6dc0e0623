package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tokenwatch/internal/analysis"
	"tokenwatch/internal/breaker"
	"tokenwatch/internal/model"
	"tokenwatch/internal/source"
	"tokenwatch/internal/tracker"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DateLayout is the format of start/end parameters.
const DateLayout = "2006-01-02"

// DefaultRange is the lookback used when start is omitted.
const DefaultRange = 30 * 24 * time.Hour

type handlers struct {
	svc Service
	log *zap.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	sonic.ConfigStd.NewEncoder(w).Encode(v)
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case analysis.IsInsufficient(err):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrNoData), errors.Is(err, tracker.ErrNoHistory):
		code = http.StatusNotFound
	case errors.Is(err, breaker.ErrOpen):
		code = http.StatusServiceUnavailable
	default:
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) analysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Analyze(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// dateRange parses start/end. A missing end is today (UTC) and a missing
// start is DefaultRange before end.
func dateRange(startS, endS string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	if endS != "" {
		t, err := time.Parse(DateLayout, endS)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end must be YYYY-MM-DD")
		}
		end = t
	}
	start := end.Add(-DefaultRange)
	if startS != "" {
		t, err := time.Parse(DateLayout, startS)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start must be YYYY-MM-DD")
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("start is after end")
	}
	return start, end, nil
}

func (h *handlers) signals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := dateRange(q.Get("start"), q.Get("end"), time.Now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rep, err := h.svc.Signals(r.Context(), mux.Vars(r)["address"], start, end)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type backtestRequest struct {
	Start  string            `json:"start"`
	End    string            `json:"end"`
	Prices model.PriceSeries `json:"prices"`
}

func (h *handlers) backtest(w http.ResponseWriter, r *http.Request) {
	contract := mux.Vars(r)["address"]

	var req backtestRequest
	if r.ContentLength != 0 {
		if err := sonic.ConfigStd.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			badRequest(w, "invalid body: "+err.Error())
			return
		}
	}

	var (
		run *model.BacktestRun
		err error
	)
	if len(req.Prices) > 0 {
		run, err = h.svc.BacktestSeries(r.Context(), contract, req.Prices)
	} else {
		start, end, perr := dateRange(req.Start, req.End, time.Now())
		if perr != nil {
			badRequest(w, perr.Error())
			return
		}
		run, err = h.svc.Backtest(r.Context(), contract, start, end)
	}
	if err != nil && run == nil {
		h.fail(w, err)
		return
	}
	if err != nil {
		h.log.Warn("backtest not journaled", zap.String("run_id", run.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *handlers) listBacktests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) getBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.svc.Run(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "backtest " + id + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}
