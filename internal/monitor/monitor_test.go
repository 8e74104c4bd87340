package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/marketdata/window"
	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func update(i int, close float64) model.KlineUpdate {
	open := t0.Add(time.Duration(i) * time.Minute)
	return model.KlineUpdate{
		Symbol: "BTCUSDT",
		Closed: true,
		Kline: model.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Minute - time.Millisecond),
			Open:      close, High: close, Low: close, Close: close,
		},
	}
}

func seeded(t *testing.T, n int, close float64) *Monitor {
	t.Helper()
	m := New(Config{Symbol: "BTCUSDT"})
	klines := make([]model.Kline, n)
	for i := range klines {
		klines[i] = update(i, close).Kline
	}
	require.Equal(t, n, m.Seed(klines))
	return m
}

func TestMonitor_DedupIdempotence(t *testing.T) {
	m := seeded(t, 59, 50)

	res, err := m.ApplyCandleUpdate(update(59, 50))
	require.NoError(t, err)
	assert.Equal(t, window.Appended, res.Outcome.Action)
	require.Len(t, res.Signals, 4)
	assert.Equal(t, 4, res.Detected)
	assert.Zero(t, res.Suppressed)

	// identical closed candle again: replaced in place, nothing new surfaces
	res, err = m.ApplyCandleUpdate(update(59, 50))
	require.NoError(t, err)
	assert.Equal(t, window.Replaced, res.Outcome.Action)
	assert.Empty(t, res.Signals)
	assert.Equal(t, 4, res.Suppressed)
	assert.Len(t, m.Signals(), 4)
}

func TestMonitor_HistoryMostRecentFirst(t *testing.T) {
	m := seeded(t, 59, 50)

	var lastBatch []strategy.Signal
	for i := 59; i < 79; i++ {
		res, err := m.ApplyCandleUpdate(update(i, 50))
		require.NoError(t, err)
		require.Len(t, res.Signals, 4)
		lastBatch = res.Signals
	}

	history := m.Signals()
	require.Len(t, history, DefaultHistorySize)
	assert.Equal(t, lastBatch, history[:4])

	last, ok := m.LastSignal()
	require.True(t, ok)
	assert.Equal(t, lastBatch[0], last)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.After(history[i-1].Timestamp))
	}
}

func TestMonitor_WindowEviction(t *testing.T) {
	m := New(Config{Symbol: "BTCUSDT"})
	for i := 0; i < 1100; i++ {
		_, err := m.ApplyCandleUpdate(update(i, 100+float64(i%7)))
		require.NoError(t, err)
	}
	klines := m.Klines()
	require.Len(t, klines, window.DefaultCapacity)
	assert.Equal(t, t0.Add(100*time.Minute), klines[0].OpenTime)
	assert.Equal(t, t0.Add(1099*time.Minute), klines[999].OpenTime)
	assert.Equal(t, window.DefaultCapacity, m.Indicators().Len())
}

func TestMonitor_OutOfOrderRejected(t *testing.T) {
	m := seeded(t, 10, 50)
	var stale int
	m.SetStaleHook(func(model.Kline) { stale++ })

	_, err := m.ApplyCandleUpdate(update(3, 50))
	assert.ErrorIs(t, err, window.ErrOutOfOrder)
	assert.Equal(t, 10, m.WindowLen())
	assert.Equal(t, 1, stale)
}

func TestMonitor_WrongSymbol(t *testing.T) {
	m := New(Config{Symbol: "BTCUSDT"})
	u := update(0, 1)
	u.Symbol = "ETHUSDT"
	_, err := m.ApplyCandleUpdate(u)
	assert.Error(t, err)
}

func TestMonitor_RestoreSuppresses(t *testing.T) {
	first := seeded(t, 59, 50)
	res, err := first.ApplyCandleUpdate(update(59, 50))
	require.NoError(t, err)
	require.NotEmpty(t, res.Signals)

	// restart: same history, signals reloaded from storage
	second := seeded(t, 59, 50)
	second.Restore(first.Signals())
	assert.Equal(t, first.Signals(), second.Signals())

	res, err = second.ApplyCandleUpdate(update(59, 50))
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
}

func TestMonitor_DecliningSeriesSurfacesOversold(t *testing.T) {
	m := New(Config{Symbol: "BTCUSDT"})
	var surfaced []strategy.Signal
	for i := 0; i < 60; i++ {
		res, err := m.ApplyCandleUpdate(update(i, 100-float64(i)))
		require.NoError(t, err)
		surfaced = append(surfaced, res.Signals...)
	}

	var found bool
	for _, s := range surfaced {
		if s.Source == strategy.SourceRSIOversold && s.Timestamp.Equal(t0.Add(59*time.Minute)) {
			found = true
			assert.Equal(t, 60.0, s.Strength)
			assert.Equal(t, strategy.SignalBuy, s.Type)
		}
	}
	assert.True(t, found)
	assert.Equal(t, 0.0, m.Indicators().RSI.Last().Float)
}

func TestMonitor_IndicatorsBeforeUpdates(t *testing.T) {
	m := New(Config{Symbol: "BTCUSDT"})
	assert.Zero(t, m.Indicators().Len())
	_, ok := m.LastSignal()
	assert.False(t, ok)
}
