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
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Feed
	KlineUpdatesTotal *prometheus.CounterVec // labels: symbol, closed
	FeedReconnects    *prometheus.CounterVec // labels: symbol
	FeedDecodeErrors  *prometheus.CounterVec // labels: symbol
	StaleKlines       *prometheus.CounterVec // labels: symbol
	LastKlineLag      prometheus.Gauge

	// Evaluation
	EvaluateDur       prometheus.Histogram
	WindowSize        *prometheus.GaugeVec   // labels: symbol
	SignalsDetected   *prometheus.CounterVec // labels: symbol
	SignalsEmitted    *prometheus.CounterVec // labels: source, type
	SignalsSuppressed *prometheus.CounterVec // labels: symbol

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Sinks
	SinkErrors      *prometheus.CounterVec // labels: sink
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		KlineUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_kline_updates_total",
			Help: "Kline updates received from the feed",
		}, []string{"symbol", "closed"}),
		FeedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_feed_reconnects_total",
			Help: "Feed disconnects followed by a reconnect attempt",
		}, []string{"symbol"}),
		FeedDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_feed_decode_errors_total",
			Help: "Feed messages that could not be decoded",
		}, []string{"symbol"}),
		StaleKlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_stale_klines_total",
			Help: "Kline updates rejected because they are older than the window tail",
		}, []string{"symbol"}),
		LastKlineLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_last_kline_lag_seconds",
			Help: "Lag between the last kline close time and its processing",
		}),

		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_evaluate_duration_seconds",
			Help:    "Indicator recompute and rule evaluation latency per update",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		WindowSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_window_size",
			Help: "Klines held in the rolling window",
		}, []string{"symbol"}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_detected_total",
			Help: "Signals raised by the detector before deduplication",
		}, []string{"symbol"}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_emitted_total",
			Help: "New signals recorded and forwarded to sinks",
		}, []string{"source", "type"}),
		SignalsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_suppressed_total",
			Help: "Signals dropped as duplicates of an already recorded id",
		}, []string{"symbol"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_fanout_drops_total",
			Help: "Signals dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_sink_errors_total",
			Help: "Failed signal deliveries per sink",
		}, []string{"sink"}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_redis_write_duration_seconds",
			Help:    "Redis publish pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_sqlite_commit_duration_seconds",
			Help:    "SQLite journal batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_redis_buffered_writes_total",
			Help: "Signals buffered locally while the Redis circuit breaker is open",
		}),
	}

	reg.MustRegister(
		m.KlineUpdatesTotal,
		m.FeedReconnects,
		m.FeedDecodeErrors,
		m.StaleKlines,
		m.LastKlineLag,
		m.EvaluateDur,
		m.WindowSize,
		m.SignalsDetected,
		m.SignalsEmitted,
		m.SignalsSuppressed,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.SinkErrors,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	feeds          map[string]bool
	lastKlineTime  time.Time
	redisEnabled   bool
	redisConnected bool
	sqliteEnabled  bool
	sqliteOK       bool

	// Liveness probe results
	redisLatencyMs  float64
	sqliteLatencyMs float64
	lastCheckAt     time.Time
	startedAt       time.Time
}

// NewHealthStatus returns a health status tracking the given symbols'
// feeds, all initially disconnected.
func NewHealthStatus(symbols []string) *HealthStatus {
	h := &HealthStatus{
		feeds:     make(map[string]bool, len(symbols)),
		startedAt: time.Now(),
	}
	for _, s := range symbols {
		h.feeds[s] = false
	}
	return h
}

func (h *HealthStatus) SetFeedConnected(symbol string, v bool) {
	h.mu.Lock()
	h.feeds[symbol] = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastKlineTime(t time.Time) {
	h.mu.Lock()
	if t.After(h.lastKlineTime) {
		h.lastKlineTime = t
	}
	h.mu.Unlock()
}

// EnableRedis marks Redis as a configured dependency with its initial state.
func (h *HealthStatus) EnableRedis(connected bool) {
	h.mu.Lock()
	h.redisEnabled = true
	h.redisConnected = connected
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a configured dependency with its initial state.
func (h *HealthStatus) EnableSQLite(ok bool) {
	h.mu.Lock()
	h.sqliteEnabled = true
	h.sqliteOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.redisEnabled = true
	h.redisConnected = err == nil
	h.redisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.sqliteEnabled = true
	h.sqliteOK = err == nil
	h.sqliteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
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

// Report is the JSON body served by /healthz.
type Report struct {
	Status          string          `json:"status"`
	Uptime          string          `json:"uptime"`
	Feeds           map[string]bool `json:"feeds"`
	LastKlineTime   string          `json:"last_kline_time"`
	KlineAge        string          `json:"kline_age"`
	RedisEnabled    bool            `json:"redis_enabled"`
	RedisConnected  bool            `json:"redis_connected"`
	RedisLatencyMs  float64         `json:"redis_latency_ms"`
	SQLiteEnabled   bool            `json:"sqlite_enabled"`
	SQLiteOK        bool            `json:"sqlite_ok"`
	SQLiteLatencyMs float64         `json:"sqlite_latency_ms"`
	LastCheckAt     string          `json:"last_check_at"`
}

// Report computes the overall status and returns it with the matching HTTP
// code: healthy (200) when every feed and configured dependency is up,
// degraded (503) when some are down, unhealthy (503) when no feed is up.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	feeds := make(map[string]bool, len(h.feeds))
	up := 0
	for s, ok := range h.feeds {
		feeds[s] = ok
		if ok {
			up++
		}
	}

	status := "healthy"
	code := http.StatusOK
	if up < len(h.feeds) ||
		(h.redisEnabled && !h.redisConnected) ||
		(h.sqliteEnabled && !h.sqliteOK) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.feeds) > 0 && up == 0 {
		status = "unhealthy"
	}

	// Kline age
	klineAge := ""
	lastKline := ""
	if !h.lastKlineTime.IsZero() {
		klineAge = time.Since(h.lastKlineTime).Round(time.Millisecond).String()
		lastKline = h.lastKlineTime.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.lastCheckAt.IsZero() {
		lastCheck = h.lastCheckAt.Format(time.RFC3339)
	}

	return Report{
		Status:          status,
		Uptime:          time.Since(h.startedAt).Round(time.Second).String(),
		Feeds:           feeds,
		LastKlineTime:   lastKline,
		KlineAge:        klineAge,
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.redisConnected,
		RedisLatencyMs:  h.redisLatencyMs,
		SQLiteEnabled:   h.sqliteEnabled,
		SQLiteOK:        h.sqliteOK,
		SQLiteLatencyMs: h.sqliteLatencyMs,
		LastCheckAt:     lastCheck,
	}, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(report)
}
