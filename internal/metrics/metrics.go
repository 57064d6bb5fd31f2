package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/logger"
)

// Metrics holds all Prometheus metrics for the trading terminal.
type Metrics struct {
	CandlesTotal   prometheus.Counter
	CandleRevises  prometheus.Counter // candles that overwrote the current bucket
	TicksTotal     prometheus.Counter
	DiscardedTotal prometheus.Counter // events from a stopped or superseded stream
	TimelineResets prometheus.Counter
	FeedErrors     prometheus.Counter
	FeedConnects   prometheus.Counter
	ChartErrors    prometheus.Counter

	TradesOpened *prometheus.CounterVec // labels: side
	TradesClosed *prometheus.CounterVec // labels: side

	Playing      prometheus.Gauge // 0=stopped, 1=playing
	Balance      prometheus.Gauge
	CurrentPrice prometheus.Gauge
	Watermark    prometheus.Gauge // display time of the latest candle

	// Redis publisher
	RedisPublishDur          prometheus.Histogram
	RedisDropped             prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	// Journal
	JournalWriteDur prometheus.Histogram

	// Browser gateway
	GatewayDropped prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_candles_total",
			Help: "Candles accepted by the market state",
		}),
		CandleRevises: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_candle_revisions_total",
			Help: "Candles that revised the latest bucket instead of opening a new one",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_ticks_total",
			Help: "Ticks accepted by the market state",
		}),
		DiscardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_discarded_events_total",
			Help: "Events dropped because playback was stopped or the stream was superseded",
		}),
		TimelineResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_timeline_resets_total",
			Help: "Stream rewinds that cleared the chart",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_feed_errors_total",
			Help: "Transport and decode errors on the simulation stream",
		}),
		FeedConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_feed_connects_total",
			Help: "Successful connections to the simulation stream",
		}),
		ChartErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_chart_errors_total",
			Help: "Chart updates that failed and were suppressed",
		}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_trades_opened_total",
			Help: "Positions opened (by side)",
		}, []string{"side"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_trades_closed_total",
			Help: "Positions closed (by side)",
		}, []string{"side"}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_playing",
			Help: "Playback state (0=stopped, 1=playing)",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_balance",
			Help: "Cash balance after realized P&L",
		}),
		CurrentPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_current_price",
			Help: "Live price",
		}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_watermark_seconds",
			Help: "Display time of the latest accepted candle",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_redis_publish_duration_seconds",
			Help:    "Redis PUBLISH latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_redis_dropped_total",
			Help: "Messages not published (queue full, breaker open or error)",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		JournalWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_journal_write_duration_seconds",
			Help:    "SQLite journal write latency",
			Buckets: prometheus.DefBuckets,
		}),
		GatewayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_gateway_dropped_total",
			Help: "Broadcasts skipped for slow WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.CandleRevises,
		m.TicksTotal,
		m.DiscardedTotal,
		m.TimelineResets,
		m.FeedErrors,
		m.FeedConnects,
		m.ChartErrors,
		m.TradesOpened,
		m.TradesClosed,
		m.Playing,
		m.Balance,
		m.CurrentPrice,
		m.Watermark,
		m.RedisPublishDur,
		m.RedisDropped,
		m.RedisCircuitBreakerState,
		m.JournalWriteDur,
		m.GatewayDropped,
	)

	return m
}

// HealthStatus represents the terminal's health.
type HealthStatus struct {
	mu sync.RWMutex

	Playing        bool      `json:"playing"`
	FeedConnected  bool      `json:"feed_connected"`
	LastEventTime  time.Time `json:"last_event_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	JournalEnabled bool      `json:"journal_enabled"`
	JournalOK      bool      `json:"journal_ok"`

	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetPlaying(v bool) {
	h.mu.Lock()
	h.Playing = v
	if !v {
		h.FeedConnected = false
	}
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedis(enabled, connected bool) {
	h.mu.Lock()
	h.RedisEnabled = enabled
	h.RedisConnected = connected
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournal(enabled, ok bool) {
	h.mu.Lock()
	h.JournalEnabled = enabled
	h.JournalOK = ok
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

// CheckJournal pings the journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
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
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. A stopped terminal is healthy;
// optional dependencies only degrade it when enabled.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.Playing && !h.FeedConnected) ||
		(h.RedisEnabled && !h.RedisConnected) ||
		(h.JournalEnabled && !h.JournalOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		Playing          bool    `json:"playing"`
		FeedConnected    bool    `json:"feed_connected"`
		EventAge         string  `json:"event_age"`
		RedisEnabled     bool    `json:"redis_enabled"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		JournalEnabled   bool    `json:"journal_enabled"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		Playing:          h.Playing,
		FeedConnected:    h.FeedConnected,
		EventAge:         eventAge,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalEnabled:   h.JournalEnabled,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz and any extra routes.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. gatherer backs /metrics;
// extra handlers are mounted as given.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, log *slog.Logger, extra map[string]http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}

	return &Server{
		addr: addr,
		log:  logger.Component(log, "http"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("server error", slog.Any("err", err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
