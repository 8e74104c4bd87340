// Package api serves the read-only HTTP API over the live monitors.
package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-engine/internal/indicator"
	"signal-engine/internal/metrics"
	"signal-engine/internal/monitor"
	"signal-engine/internal/strategy"
)

// Monitors resolves the monitor for a symbol.
type Monitors interface {
	Symbols() []string
	Monitor(symbol string) (*monitor.Monitor, bool)
}

// Options configures the router.
type Options struct {
	Monitors Monitors
	Health   *metrics.HealthStatus // optional, serves /healthz
	Gatherer prometheus.Gatherer   // optional, serves /metrics
}

// NewRouter sets up the HTTP routes.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if opts.Health != nil {
		r.GET("/healthz", gin.WrapH(opts.Health))
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &handlers{monitors: opts.Monitors}
	v1 := r.Group("/api/v1")
	v1.GET("/symbols", h.symbols)
	v1.GET("/signals/:symbol", h.withMonitor(h.signals))
	v1.GET("/signals/:symbol/last", h.withMonitor(h.lastSignal))
	v1.GET("/klines/:symbol", h.withMonitor(h.klines))
	v1.GET("/indicators/:symbol", h.withMonitor(h.indicators))
	return r
}

type handlers struct {
	monitors Monitors
}

func (h *handlers) symbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": h.monitors.Symbols()})
}

func (h *handlers) withMonitor(fn func(c *gin.Context, m *monitor.Monitor)) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := strings.ToUpper(c.Param("symbol"))
		m, ok := h.monitors.Monitor(symbol)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
			return
		}
		fn(c, m)
	}
}

func (h *handlers) signals(c *gin.Context, m *monitor.Monitor) {
	signals := m.Signals()
	switch c.Query("sort") {
	case "", "time":
	case "strength":
		strategy.SortByStrength(signals)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be time or strength"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": m.Symbol(), "signals": signals})
}

func (h *handlers) lastSignal(c *gin.Context, m *monitor.Monitor) {
	s, ok := m.LastSignal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signals yet"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) klines(c *gin.Context, m *monitor.Monitor) {
	c.JSON(http.StatusOK, gin.H{"symbol": m.Symbol(), "klines": m.Klines()})
}

// latest is the indicator state at the newest candle.
type latest struct {
	OpenTime  time.Time       `json:"openTime"`
	MACD      indicator.Value `json:"macd"`
	Signal    indicator.Value `json:"macdSignal"`
	Histogram indicator.Value `json:"macdHistogram"`
	RSI       indicator.Value `json:"rsi"`
	StochK    indicator.Value `json:"stochK"`
	StochD    indicator.Value `json:"stochD"`
	BBUpper   indicator.Value `json:"bbUpper"`
	BBMiddle  indicator.Value `json:"bbMiddle"`
	BBLower   indicator.Value `json:"bbLower"`
}

func (h *handlers) indicators(c *gin.Context, m *monitor.Monitor) {
	b := m.Indicators()
	if c.Query("full") == "true" {
		c.JSON(http.StatusOK, gin.H{"symbol": m.Symbol(), "indicators": b})
		return
	}
	if b.Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candles yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": m.Symbol(), "candles": b.Len(), "latest": latest{
		OpenTime:  b.OpenTimes[b.Len()-1],
		MACD:      b.MACD.MACD.Last(),
		Signal:    b.MACD.Signal.Last(),
		Histogram: b.MACD.Histogram.Last(),
		RSI:       b.RSI.Last(),
		StochK:    b.Stoch.K.Last(),
		StochD:    b.Stoch.D.Last(),
		BBUpper:   b.Bollinger.Upper.Last(),
		BBMiddle:  b.Bollinger.Middle.Last(),
		BBLower:   b.Bollinger.Lower.Last(),
	}})
}

// Server runs the API over HTTP.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates an API server on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
