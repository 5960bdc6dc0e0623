package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SolanaOK         bool      `json:"solana_ok"`
	LastFetchTime    time.Time `json:"last_fetch_time"`
	WatcherConnected bool      `json:"watcher_connected"`
	RedisEnabled     bool      `json:"redis_enabled"`
	RedisConnected   bool      `json:"redis_connected"`
	SQLiteOK         bool      `json:"sqlite_ok"`
	Contracts        []string  `json:"contracts"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetFetchResult records the outcome of the latest upstream fetch.
func (h *HealthStatus) SetFetchResult(ok bool, at time.Time) {
	h.mu.Lock()
	h.SolanaOK = ok
	if ok {
		h.LastFetchTime = at
	}
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatcherConnected(v bool) {
	h.mu.Lock()
	h.WatcherConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetContracts(c []string) {
	h.mu.Lock()
	h.Contracts = c
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// rdb and sqlDB may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the /healthz body.
type Report struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	SolanaOK         bool     `json:"solana_ok"`
	LastFetchTime    string   `json:"last_fetch_time"`
	FetchAge         string   `json:"fetch_age"`
	WatcherConnected bool     `json:"watcher_connected"`
	RedisEnabled     bool     `json:"redis_enabled"`
	RedisConnected   bool     `json:"redis_connected"`
	RedisLatencyMs   float64  `json:"redis_latency_ms"`
	SQLiteOK         bool     `json:"sqlite_ok"`
	SQLiteLatencyMs  float64  `json:"sqlite_latency_ms"`
	Contracts        []string `json:"contracts"`
	LastCheckAt      string   `json:"last_check_at"`
}

// Snapshot computes the overall status: "healthy", "degraded" when one
// dependency is down, "unhealthy" when both upstream and storage are down.
func (h *HealthStatus) Snapshot() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	storageOK := h.SQLiteOK && (!h.RedisEnabled || h.RedisConnected)
	status := "healthy"
	if !h.SolanaOK || !storageOK {
		status = "degraded"
	}
	if !h.SolanaOK && !storageOK {
		status = "unhealthy"
	}

	fetchAge := ""
	if !h.LastFetchTime.IsZero() {
		fetchAge = time.Since(h.LastFetchTime).Round(time.Millisecond).String()
	}

	return Report{
		Status:           status,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		SolanaOK:         h.SolanaOK,
		LastFetchTime:    h.LastFetchTime.Format(time.RFC3339),
		FetchAge:         fetchAge,
		WatcherConnected: h.WatcherConnected,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		Contracts:        h.Contracts,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if rep.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}
