// Package api serves the tokenwatch REST API and the live analysis stream.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tokenwatch/internal/model"
	"tokenwatch/internal/tracker"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Service is the subset of tracker.Tracker the handlers use.
type Service interface {
	Analyze(ctx context.Context, contract string) (*model.AnalysisResult, error)
	Signals(ctx context.Context, contract string, start, end time.Time) (*tracker.SignalReport, error)
	Backtest(ctx context.Context, contract string, start, end time.Time) (*model.BacktestRun, error)
	BacktestSeries(ctx context.Context, contract string, series model.PriceSeries) (*model.BacktestRun, error)
	Runs(ctx context.Context, limit int) ([]model.BacktestRun, error)
	Run(ctx context.Context, id string) (*model.BacktestRun, error)
}

// Route describes one REST endpoint.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// RESTLogger logs every request with its route name and latency.
func RESTLogger(inner http.Handler, name string, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.String("route", name),
			zap.Duration("took", time.Since(start)))
	})
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter builds the API router. hub may be nil, which disables the
// /api/v1/stream websocket.
func NewRouter(svc Service, hub *Hub, log *zap.Logger) *mux.Router {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: svc, log: log}

	routes := []Route{
		{"Health", http.MethodGet, "/api/v1/health", h.health},
		{"Analysis", http.MethodGet, "/api/v1/contracts/{address}/analysis", h.analysis},
		{"Signals", http.MethodGet, "/api/v1/contracts/{address}/signals", h.signals},
		{"Backtest", http.MethodPost, "/api/v1/contracts/{address}/backtest", h.backtest},
		{"ListBacktests", http.MethodGet, "/api/v1/backtests", h.listBacktests},
		{"GetBacktest", http.MethodGet, "/api/v1/backtests/{id}", h.getBacktest},
	}
	if hub != nil {
		routes = append(routes, Route{"Stream", http.MethodGet, "/api/v1/stream", hub.ServeWS})
	}

	router := mux.NewRouter().StrictSlash(true)
	allowed := make(map[string][]string)
	var patterns []string
	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(RESTLogger(route.HandlerFunc, route.Name, log))
		if _, ok := allowed[route.Pattern]; !ok {
			patterns = append(patterns, route.Pattern)
		}
		allowed[route.Pattern] = append(allowed[route.Pattern], route.Method)
	}
	// Registered after the method routes, so these only see requests whose
	// path matched but whose method did not.
	for _, pattern := range patterns {
		router.Path(pattern).Handler(methodFallback(allowed[pattern]))
	}
	return router
}

// methodFallback answers CORS preflights and rejects other methods with 405.
func methodFallback(methods []string) http.Handler {
	allow := strings.Join(append([]string{http.MethodOptions}, methods...), ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		if r.Method == http.MethodOptions {
			SetCORS(w)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method " + r.Method + " not allowed"})
	})
}

// Server runs the API over HTTP.
type Server struct {
	addr string
	srv  *http.Server
	log  *zap.Logger
}

// NewServer creates an API server on addr.
func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("api server listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
