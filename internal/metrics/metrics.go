package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the paper-trading engine.
type Metrics struct {
	// Tick hub
	TicksTotal     prometheus.Counter
	DroppedTicks   *prometheus.CounterVec // labels: consumer
	WSReconnects   prometheus.Counter
	Subscriptions  prometheus.Gauge
	TickAgeSeconds prometheus.Gauge

	// Candle builder
	CandlesClosed *prometheus.CounterVec // labels: interval
	LateTicks     prometheus.Counter

	// Historical fetcher
	HistoryChunks     prometheus.Counter
	HistoryChunkFails prometheus.Counter
	HistoryFetchDur   prometheus.Histogram

	// Paper engine
	OrdersPlaced   *prometheus.CounterVec // labels: side, order_type
	OrdersRejected *prometheus.CounterVec // labels: rule
	OrdersFilled   prometheus.Counter
	TradesTotal    prometheus.Counter

	// Bot
	BotSignals    *prometheus.CounterVec // labels: strategy, kind
	BotState      prometheus.Gauge       // 0=stopped 1=running 2=paused 3=error
	SquareOffRuns prometheus.Counter

	// Stores
	SQLiteWriteDur    prometheus.Histogram
	RedisPublishDur   prometheus.Histogram
	RedisCircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	// Market session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Total ticks received from the upstream websocket",
		}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_dropped_ticks_total",
			Help: "Ticks dropped per slow fan-out consumer",
		}, []string{"consumer"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ws_reconnects_total",
			Help: "Upstream websocket reconnection attempts",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_subscriptions",
			Help: "Currently subscribed instrument tokens",
		}),
		TickAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_tick_age_seconds",
			Help: "Age of the most recent tick",
		}),

		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_candles_closed_total",
			Help: "Closed candles per interval (minutes)",
		}, []string{"interval"}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_late_ticks_total",
			Help: "Ticks dropped because they predate the open bucket",
		}),

		HistoryChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_history_chunks_total",
			Help: "Historical chunk requests issued upstream",
		}),
		HistoryChunkFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_history_chunk_failures_total",
			Help: "Historical chunk requests that failed",
		}),
		HistoryFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_history_fetch_duration_seconds",
			Help:    "Full historical fetch latency including all chunks",
			Buckets: prometheus.DefBuckets,
		}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_placed_total",
			Help: "Orders accepted by the paper engine",
		}, []string{"side", "order_type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Orders rejected, by risk or validation rule",
		}, []string{"rule"}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_filled_total",
			Help: "Order fills executed",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Trade-log entries appended",
		}),

		BotSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_bot_signals_total",
			Help: "Strategy signals emitted, by strategy and kind",
		}, []string{"strategy", "kind"}),
		BotState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_bot_state",
			Help: "Bot lifecycle state (0=stopped, 1=running, 2=paused, 3=error)",
		}),
		SquareOffRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_square_off_runs_total",
			Help: "Auto square-off passes executed",
		}),

		SQLiteWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_sqlite_write_duration_seconds",
			Help:    "SQLite write-through latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_redis_circuit_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.DroppedTicks,
		m.WSReconnects,
		m.Subscriptions,
		m.TickAgeSeconds,
		m.CandlesClosed,
		m.LateTicks,
		m.HistoryChunks,
		m.HistoryChunkFails,
		m.HistoryFetchDur,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.OrdersFilled,
		m.TradesTotal,
		m.BotSignals,
		m.BotState,
		m.SquareOffRuns,
		m.SQLiteWriteDur,
		m.RedisPublishDur,
		m.RedisCircuitState,
		m.MarketState,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastTickTime   time.Time
	RedisConnected bool
	SQLiteOK       bool
	BotState       string

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetBotState(s string) {
	h.mu.Lock()
	h.BotState = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
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

// StartLivenessChecker runs periodic dependency checks.
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

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		BotState        string  `json:"bot_state"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		BotState:        h.BotState,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
