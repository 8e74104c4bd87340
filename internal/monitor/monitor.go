// Package monitor drives live signal evaluation for one symbol.
//
// A Monitor owns the symbol's candle window, the dedup set of surfaced
// signal ids and the bounded recent-signal history. ApplyCandleUpdate is the
// single mutation entry point and must be called from one goroutine; the read
// accessors may be called concurrently from others (e.g. HTTP handlers).
package monitor

import (
	"fmt"
	"sync"

	"signal-engine/internal/dedup"
	"signal-engine/internal/indicator"
	"signal-engine/internal/marketdata/window"
	"signal-engine/internal/model"
	"signal-engine/internal/ringbuf"
	"signal-engine/internal/strategy"
)

// DefaultHistorySize is the number of surfaced signals retained.
const DefaultHistorySize = 50

// Config holds per-symbol monitor settings. Zero sizes fall back to defaults.
type Config struct {
	Symbol      string
	WindowSize  int
	DedupSize   int
	HistorySize int
	Params      indicator.Params
}

// Result reports what one update produced.
type Result struct {
	// Signals are the newly surfaced signals, in detection order.
	Signals []strategy.Signal
	// Detected is the detector's raw output count before dedup.
	Detected int
	// Suppressed is the number of detected signals already surfaced earlier.
	Suppressed int
	Outcome    window.Outcome
}

// Monitor evaluates one symbol's candle stream.
type Monitor struct {
	symbol   string
	detector *strategy.Detector

	mu      sync.RWMutex
	window  *window.Window
	seen    *dedup.Set
	history *ringbuf.Ring[strategy.Signal] // oldest first
	bundle  indicator.Bundle
}

// New creates a monitor for cfg.Symbol.
func New(cfg Config) *Monitor {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Params == (indicator.Params{}) {
		cfg.Params = indicator.DefaultParams()
	}
	return &Monitor{
		symbol:   cfg.Symbol,
		detector: strategy.NewDetector(cfg.Params),
		window:   window.New(cfg.WindowSize),
		seen:     dedup.New(cfg.DedupSize),
		history:  ringbuf.New[strategy.Signal](cfg.HistorySize),
	}
}

// Symbol returns the monitored symbol.
func (m *Monitor) Symbol() string { return m.symbol }

// SetStaleHook installs a callback for out-of-order klines the window rejects.
func (m *Monitor) SetStaleHook(fn func(k model.Kline)) {
	m.mu.Lock()
	m.window.OnStaleKline = fn
	m.mu.Unlock()
}

// ApplyCandleUpdate merges u into the window, re-runs detection over the
// whole window and surfaces only signals whose ids were not surfaced before.
// An out-of-order update is rejected with window.ErrOutOfOrder and nothing
// is evaluated.
func (m *Monitor) ApplyCandleUpdate(u model.KlineUpdate) (Result, error) {
	if u.Symbol != "" && u.Symbol != m.symbol {
		return Result{}, fmt.Errorf("monitor %s: update for symbol %s", m.symbol, u.Symbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	outcome, err := m.window.Apply(u.Kline)
	if err != nil {
		return Result{Outcome: outcome}, err
	}

	klines := m.window.Klines()
	m.bundle = indicator.Compute(klines, m.detector.Params())
	detected := m.detector.DetectBundle(klines, m.bundle, m.symbol)

	res := Result{Outcome: outcome, Detected: len(detected)}
	for _, s := range detected {
		if !m.seen.Add(s.ID) {
			res.Suppressed++
			continue
		}
		res.Signals = append(res.Signals, s)
	}

	// Newest batch goes to the front of the history with its order kept,
	// so push it back to front.
	for i := len(res.Signals) - 1; i >= 0; i-- {
		m.history.Push(res.Signals[i])
	}
	return res, nil
}

// Seed warms the window with history without surfacing signals.
// Returns the number of klines accepted.
func (m *Monitor) Seed(klines []model.Kline) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.window.Seed(klines)
	m.bundle = indicator.Compute(m.window.Klines(), m.detector.Params())
	return n
}

// Restore reloads previously surfaced signals, most recent first, into the
// history and the dedup set so a restart does not surface them again.
func (m *Monitor) Restore(signals []strategy.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(signals) - 1; i >= 0; i-- {
		if m.seen.Add(signals[i].ID) {
			m.history.Push(signals[i])
		}
	}
}

// Signals returns the retained history, most recent first.
func (m *Monitor) Signals() []strategy.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chrono := m.history.Slice()
	out := make([]strategy.Signal, len(chrono))
	for i, s := range chrono {
		out[len(chrono)-1-i] = s
	}
	return out
}

// LastSignal returns the most recently surfaced signal.
func (m *Monitor) LastSignal() (strategy.Signal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Last()
}

// Klines returns a copy of the current window, oldest first.
func (m *Monitor) Klines() []model.Kline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window.Klines()
}

// WindowLen returns the number of candles in the window.
func (m *Monitor) WindowLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window.Len()
}

// Indicators returns the indicator series computed for the current window.
func (m *Monitor) Indicators() indicator.Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bundle
}
