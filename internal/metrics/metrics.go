// Package metrics exposes Prometheus metrics and a health endpoint for a
// backtest run.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
	"swingtrader/internal/portfolio"
	"swingtrader/internal/signal"
)

// Metrics holds all Prometheus metrics for the engine. It implements
// strategy.Observer and strategy.TickObserver.
type Metrics struct {
	BarsTotal          prometheus.Counter
	ReadyBars          prometheus.Counter
	EntrySignals       *prometheus.CounterVec // labels: symbol
	IntentsTotal       *prometheus.CounterVec // labels: side, reason
	NotificationsTotal *prometheus.CounterVec // labels: status
	StaleNotifications prometheus.Counter
	HaltedInstruments  prometheus.Gauge
	TicksTotal         prometheus.Counter
	TickDuration       prometheus.Histogram

	// Portfolio, refreshed after every tick when a portfolio is tracked
	OpenPositions prometheus.Gauge
	Equity        prometheus.Gauge
	Cash          prometheus.Gauge
	Drawdown      prometheus.Gauge

	// Event sinks
	EventsDropped       prometheus.Gauge
	CircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	WSClients           prometheus.Gauge

	rsThreshold float64
	pf          *portfolio.Portfolio
	health      *HealthStatus
	clients     func() int
}

// NewMetrics creates the metrics and registers them on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer, rsThreshold float64) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_bars_total",
			Help: "Bars evaluated by the engine",
		}),
		ReadyBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_ready_bars_total",
			Help: "Bars whose snapshot had every gating component ready",
		}),
		EntrySignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swingtrader_entry_signals_total",
			Help: "Bars where the combined entry condition held",
		}, []string{"symbol"}),
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swingtrader_intents_total",
			Help: "Order intents emitted",
		}, []string{"side", "reason"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swingtrader_notifications_total",
			Help: "Broker notifications received",
		}, []string{"status"}),
		StaleNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_stale_notifications_total",
			Help: "Notifications that did not match the pending intent",
		}),
		HaltedInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_halted_instruments",
			Help: "Instruments halted by malformed or out-of-order bars",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swingtrader_ticks_total",
			Help: "Synchronized ticks processed",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swingtrader_tick_duration_seconds",
			Help:    "Time to fill, evaluate and submit one tick",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_open_positions",
			Help: "Open positions in the paper portfolio",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_equity",
			Help: "Portfolio equity marked to the last close",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_cash",
			Help: "Portfolio cash",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_drawdown_ratio",
			Help: "Current drawdown from peak equity",
		}),

		EventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_redis_events_dropped",
			Help: "Events the Redis publisher dropped",
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swingtrader_ws_clients",
			Help: "Connected websocket monitors",
		}),

		rsThreshold: rsThreshold,
	}

	reg.MustRegister(
		m.BarsTotal, m.ReadyBars, m.EntrySignals, m.IntentsTotal,
		m.NotificationsTotal, m.StaleNotifications, m.HaltedInstruments,
		m.TicksTotal, m.TickDuration,
		m.OpenPositions, m.Equity, m.Cash, m.Drawdown,
		m.EventsDropped, m.CircuitBreakerState, m.WSClients,
	)
	return m
}

// TrackPortfolio makes OnTickDone refresh the portfolio gauges from pf.
func (m *Metrics) TrackPortfolio(pf *portfolio.Portfolio) { m.pf = pf }

// TrackHealth forwards replay progress to h.
func (m *Metrics) TrackHealth(h *HealthStatus) { m.health = h }

// WatchClients samples the websocket client count after every tick.
func (m *Metrics) WatchClients(count func() int) { m.clients = count }

func (m *Metrics) OnSnapshot(s signal.Snapshot, _ model.PositionState) {
	m.BarsTotal.Inc()
	if !s.Ready() {
		return
	}
	m.ReadyBars.Inc()
	if s.Entry(m.rsThreshold) {
		m.EntrySignals.WithLabelValues(s.Symbol).Inc()
	}
}

func (m *Metrics) OnIntent(in model.OrderIntent) {
	m.IntentsTotal.WithLabelValues(string(in.Side), string(in.Reason)).Inc()
}

func (m *Metrics) OnNotification(n model.Notification, err error) {
	m.NotificationsTotal.WithLabelValues(string(n.Status)).Inc()
	if err != nil {
		m.StaleNotifications.Inc()
	}
}

func (m *Metrics) OnTickDone(ts time.Time, bars int, took time.Duration) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(took.Seconds())
	if m.health != nil {
		m.health.OnTickDone(ts, bars, took)
	}
	if m.clients != nil {
		m.WSClients.Set(float64(m.clients()))
	}
	if m.pf == nil {
		return
	}
	eq, _ := m.pf.Equity().Float64()
	cash, _ := m.pf.Cash().Float64()
	m.Equity.Set(eq)
	m.Cash.Set(cash)
	m.OpenPositions.Set(float64(m.pf.OpenPositions()))
	dd, _ := m.pf.Drawdown().Float64()
	m.Drawdown.Set(dd)
}

// HealthStatus tracks run progress and dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt       time.Time
	RunID           string
	LastBarTime     time.Time
	Ticks           int64
	Finished        bool
	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
}

// NewHealthStatus creates a health tracker for a run.
func NewHealthStatus(runID string) *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		RunID:     runID,
		SQLiteOK:  true,
	}
}

// OnTickDone records replay progress; Metrics forwards it when tracking h.
func (h *HealthStatus) OnTickDone(ts time.Time, _ int, _ time.Duration) {
	h.mu.Lock()
	h.LastBarTime = ts
	h.Ticks++
	h.mu.Unlock()
}

func (h *HealthStatus) SetFinished() {
	h.mu.Lock()
	h.Finished = true
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.RedisConnected = v
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

// StartLivenessChecker runs periodic dependency checks until ctx ends.
// Either client may be nil.
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
	if !h.SQLiteOK || (h.RedisEnabled && !h.RedisConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastBar := ""
	if !h.LastBarTime.IsZero() {
		lastBar = h.LastBarTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		RunID           string  `json:"run_id"`
		Uptime          string  `json:"uptime"`
		Ticks           int64   `json:"ticks"`
		LastBarTime     string  `json:"last_bar_time"`
		Finished        bool    `json:"finished"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          overallStatus,
		RunID:           h.RunID,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Ticks:           h.Ticks,
		LastBarTime:     lastBar,
		Finished:        h.Finished,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server. A nil gatherer uses the
// default one.
func NewServer(addr string, g prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
		log:  log.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
