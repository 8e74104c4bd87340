package model

import (
	"context"
)

// ── Port Interfaces ──
// These interfaces decouple the signal pipeline from concrete feed
// implementations (exchange websocket, file replay).

// KlineSource streams kline updates for one symbol.
type KlineSource interface {
	// Stream sends updates for symbol to out in arrival order.
	// Blocks until ctx is cancelled, the source is exhausted, or a fatal error occurs.
	// Stream does not close out.
	Stream(ctx context.Context, symbol string, out chan<- KlineUpdate) error
}

// HistoryLoader loads closed klines used to warm a symbol's window.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, symbol string) ([]Kline, error)
}
