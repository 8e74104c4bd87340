// Package window maintains the bounded, time-ordered candle window a symbol
// is evaluated over.
package window

import (
	"errors"

	"signal-engine/internal/model"
	"signal-engine/internal/ringbuf"
)

// DefaultCapacity is the number of candles retained per symbol.
const DefaultCapacity = 1000

// ErrOutOfOrder is returned when an update is older than the newest candle.
var ErrOutOfOrder = errors.New("window: kline older than newest candle")

// Action describes how an update changed the window.
type Action int

const (
	Appended Action = iota
	Replaced
)

func (a Action) String() string {
	switch a {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Outcome reports the effect of Apply.
type Outcome struct {
	Action  Action
	Evicted bool // the oldest candle was dropped to make room
	Len     int
}

// Window is a FIFO of klines with strictly increasing OpenTime.
type Window struct {
	ring *ringbuf.Ring[model.Kline]

	// Metrics hooks
	OnStaleKline func(k model.Kline) // called when an out-of-order kline is rejected (optional)
}

// New creates a window holding at most capacity klines.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{ring: ringbuf.New[model.Kline](capacity)}
}

// Apply merges k into the window. A kline with the newest OpenTime replaces
// that candle in place; a later OpenTime is appended, evicting the oldest
// candle at capacity. An earlier OpenTime is rejected with ErrOutOfOrder
// and leaves the window unchanged.
func (w *Window) Apply(k model.Kline) (Outcome, error) {
	if last, ok := w.ring.Last(); ok {
		switch {
		case k.OpenTime.Equal(last.OpenTime):
			w.ring.SetLast(k)
			return Outcome{Action: Replaced, Len: w.ring.Len()}, nil
		case k.OpenTime.Before(last.OpenTime):
			if w.OnStaleKline != nil {
				w.OnStaleKline(k)
			}
			return Outcome{Len: w.ring.Len()}, ErrOutOfOrder
		}
	}
	_, evicted := w.ring.Push(k)
	return Outcome{Action: Appended, Evicted: evicted, Len: w.ring.Len()}, nil
}

// Seed loads history through Apply, skipping out-of-order entries.
// Returns the number of klines accepted.
func (w *Window) Seed(klines []model.Kline) int {
	n := 0
	for _, k := range klines {
		if _, err := w.Apply(k); err == nil {
			n++
		}
	}
	return n
}

// Klines returns a copy of the window, oldest first.
func (w *Window) Klines() []model.Kline { return w.ring.Slice() }

// Last returns the newest kline.
func (w *Window) Last() (model.Kline, bool) { return w.ring.Last() }

// Len returns the number of klines held.
func (w *Window) Len() int { return w.ring.Len() }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.ring.Cap() }
