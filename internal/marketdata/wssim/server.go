// Package wssim serves simulated klines over a websocket using the Binance
// kline stream format, for running the engine without exchange access.
//
// Clients connect to /ws/<symbol>@kline_<interval>, the same path layout
// binance.StreamURL produces, and receive forming updates for each candle
// followed by its closed event. Simulated time runs faster than wall time:
// every CandleEvery of wall time closes one interval-long candle.
package wssim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-engine/internal/model"
)

// Config holds simulator settings.
type Config struct {
	Symbols  []string
	Interval string // kline interval label, e.g. "1m"

	// CandleEvery is the wall time per simulated candle. Defaults to 1s.
	CandleEvery time.Duration
	// UpdatesPerCandle is the number of events per candle, the last one
	// closed. Defaults to 4.
	UpdatesPerCandle int

	StartPrice float64 // defaults to 100
	Seed       int64   // 0 seeds from the clock
	Start      time.Time
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.CandleEvery <= 0 {
		c.CandleEvery = time.Second
	}
	if c.UpdatesPerCandle < 1 {
		c.UpdatesPerCandle = 4
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Start.IsZero() {
		c.Start = time.Now().UTC().Truncate(time.Minute)
	}
}

// IntervalDuration converts a kline interval label ("1s", "1m", "4h", "1d",
// "1w") into a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	if n := len(interval); n > 1 {
		unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[interval[n-1]]
		if unit > 0 {
			var k int
			if _, err := fmt.Sscanf(interval[:n-1], "%d", &k); err == nil && k > 0 {
				return time.Duration(k) * unit, nil
			}
		}
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("wssim: bad interval %q", interval)
	}
	return d, nil
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type client struct {
	stream string
	ch     chan []byte
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]client)}
}

func (h *hub) register(conn *websocket.Conn, stream string) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = client{stream: stream, ch: ch}
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(stream string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.stream != stream {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client, drop update
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for conn, c := range h.clients {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// ─── Server ───────────────────────────────────────────────────────────────────

// Server generates klines for the configured symbols and broadcasts them to
// subscribed websocket clients.
type Server struct {
	cfg      Config
	interval time.Duration
	hub      *hub
	upgrader websocket.Upgrader
}

// NewServer creates a simulator. It returns an error for an unknown interval.
func NewServer(cfg Config) (*Server, error) {
	cfg.defaults()
	d, err := IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		interval: d,
		hub:      newHub(),
		upgrader: websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }},
	}, nil
}

// Handler serves /ws/<stream> and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok","service":"klinesim"}`)
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	stream := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/ws/"))
	if !strings.Contains(stream, "@kline_") {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[klinesim] upgrade error: %v", err)
		return
	}
	log.Printf("[klinesim] client connected: %s (%s)", r.RemoteAddr, stream)

	ch := s.hub.register(conn, stream)
	defer func() {
		s.hub.unregister(conn)
		conn.Close()
		log.Printf("[klinesim] client disconnected: %s", r.RemoteAddr)
	}()

	// Drain client frames so close and ping frames are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unregister(conn)
				return
			}
		}
	}()

	// Write pump: sends events to this client.
	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Run generates candles until ctx is cancelled, then closes every client.
func (s *Server) Run(ctx context.Context) {
	defer s.hub.closeAll()

	gens := make([]*generator, len(s.cfg.Symbols))
	for i, sym := range s.cfg.Symbols {
		gens[i] = newGenerator(strings.ToUpper(sym), s.cfg, s.interval, s.cfg.Seed+int64(i))
	}

	step := s.cfg.CandleEvery / time.Duration(s.cfg.UpdatesPerCandle)
	if step <= 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, g := range gens {
				u := g.next()
				msg, err := EncodeKlineEvent(u, s.cfg.Interval)
				if err != nil {
					continue
				}
				s.hub.broadcast(strings.ToLower(u.Symbol)+"@kline_"+s.cfg.Interval, msg)
			}
		}
	}
}

// ─── Kline generator ─────────────────────────────────────────────────────────

// generator random-walks one symbol's price and shapes it into candles.
type generator struct {
	symbol   string
	interval time.Duration
	perBar   int
	rng      *rand.Rand

	price float64
	step  int
	cur   model.Kline
}

func newGenerator(symbol string, cfg Config, interval time.Duration, seed int64) *generator {
	g := &generator{
		symbol:   symbol,
		interval: interval,
		perBar:   cfg.UpdatesPerCandle,
		rng:      rand.New(rand.NewSource(seed)),
		price:    cfg.StartPrice,
	}
	g.open(cfg.Start)
	return g
}

func (g *generator) open(at time.Time) {
	g.step = 0
	g.cur = model.Kline{
		OpenTime:  at,
		CloseTime: at.Add(g.interval - time.Millisecond),
		Open:      g.price,
		High:      g.price,
		Low:       g.price,
		Close:     g.price,
	}
}

// walk applies a small random walk (±0.3%) to the price.
func (g *generator) walk() {
	pct := (g.rng.Float64()*0.6 - 0.3) / 100.0
	g.price *= 1 + pct
	if g.price < 0.01 {
		g.price = 0.01
	}
}

// next returns the following event for the current candle. The last event
// of a candle is closed and the next call opens a new one.
func (g *generator) next() model.KlineUpdate {
	if g.step == g.perBar {
		g.open(g.cur.OpenTime.Add(g.interval))
	}
	g.walk()
	g.step++

	k := &g.cur
	k.Close = g.price
	if g.price > k.High {
		k.High = g.price
	}
	if g.price < k.Low {
		k.Low = g.price
	}
	qty := float64(g.rng.Intn(100) + 1)
	k.Volume += qty
	k.QuoteVolume += qty * g.price
	k.TradeCount += int64(g.rng.Intn(20) + 1)
	k.TakerBuyBaseVolume = k.Volume / 2
	k.TakerBuyQuoteVolume = k.QuoteVolume / 2

	return model.KlineUpdate{Symbol: g.symbol, Kline: *k, Closed: g.step == g.perBar}
}

// klineEvent mirrors the Binance kline websocket event.
type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime            int64  `json:"t"`
	CloseTime           int64  `json:"T"`
	Symbol              string `json:"s"`
	Interval            string `json:"i"`
	Open                string `json:"o"`
	Close               string `json:"c"`
	High                string `json:"h"`
	Low                 string `json:"l"`
	Volume              string `json:"v"`
	TradeCount          int64  `json:"n"`
	Closed              bool   `json:"x"`
	QuoteVolume         string `json:"q"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
	Ignore              string `json:"B"`
}

// EncodeKlineEvent renders u as a Binance kline event.
func EncodeKlineEvent(u model.KlineUpdate, interval string) ([]byte, error) {
	k := u.Kline
	return json.Marshal(klineEvent{
		EventType: "kline",
		EventTime: k.CloseTime.UnixMilli(),
		Symbol:    u.Symbol,
		Kline: klinePayload{
			OpenTime:            k.OpenTime.UnixMilli(),
			CloseTime:           k.CloseTime.UnixMilli(),
			Symbol:              u.Symbol,
			Interval:            interval,
			Open:                model.FormatFloat(k.Open),
			Close:               model.FormatFloat(k.Close),
			High:                model.FormatFloat(k.High),
			Low:                 model.FormatFloat(k.Low),
			Volume:              model.FormatFloat(k.Volume),
			TradeCount:          k.TradeCount,
			Closed:              u.Closed,
			QuoteVolume:         model.FormatFloat(k.QuoteVolume),
			TakerBuyBaseVolume:  model.FormatFloat(k.TakerBuyBaseVolume),
			TakerBuyQuoteVolume: model.FormatFloat(k.TakerBuyQuoteVolume),
			Ignore:              "0",
		},
	})
}
