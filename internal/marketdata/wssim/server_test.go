package wssim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/marketdata/binance"
	"signal-engine/internal/model"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1s": time.Second,
		"1m": time.Minute,
		"4h": 4 * time.Hour,
		"1d": 24 * time.Hour,
		"1w": 7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := IntervalDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "x", "0m", "-1h", "zd"} {
		_, err := IntervalDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestGenerator_CandleShape(t *testing.T) {
	cfg := Config{UpdatesPerCandle: 3, Seed: 7, Start: start}
	cfg.defaults()
	g := newGenerator("BTCUSDT", cfg, time.Minute, cfg.Seed)

	var closed []model.Kline
	for i := 0; i < 9; i++ {
		u := g.next()
		assert.Equal(t, "BTCUSDT", u.Symbol)
		k := u.Kline
		assert.GreaterOrEqual(t, k.High, k.Open)
		assert.GreaterOrEqual(t, k.High, k.Close)
		assert.LessOrEqual(t, k.Low, k.Open)
		assert.LessOrEqual(t, k.Low, k.Close)
		assert.Equal(t, (i+1)%3 == 0, u.Closed, "update %d", i)
		if u.Closed {
			closed = append(closed, k)
		}
	}

	require.Len(t, closed, 3)
	for i, k := range closed {
		assert.Equal(t, start.Add(time.Duration(i)*time.Minute), k.OpenTime)
		assert.Equal(t, k.OpenTime.Add(time.Minute-time.Millisecond), k.CloseTime)
		if i > 0 {
			// the next candle opens where the previous one closed
			assert.Equal(t, closed[i-1].Close, k.Open)
		}
	}
}

func TestEncodeKlineEvent_DecodesAsBinance(t *testing.T) {
	u := model.KlineUpdate{
		Symbol: "ETHUSDT",
		Kline: model.Kline{
			OpenTime:   start,
			CloseTime:  start.Add(time.Minute - time.Millisecond),
			Open:       10,
			High:       12.5,
			Low:        9.75,
			Close:      11,
			Volume:     3,
			TradeCount: 4,
		},
		Closed: true,
	}
	data, err := EncodeKlineEvent(u, "1m")
	require.NoError(t, err)

	got, err := binance.DecodeKlineEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.True(t, got.Closed)
	assert.True(t, got.Kline.OpenTime.Equal(start))
	assert.Equal(t, 12.5, got.Kline.High)
	assert.Equal(t, 9.75, got.Kline.Low)
	assert.Equal(t, 11.0, got.Kline.Close)
}

func TestServer_FeedsBinanceClient(t *testing.T) {
	sim, err := NewServer(Config{
		Symbols:          []string{"btcusdt"},
		Interval:         "1m",
		CandleEvery:      40 * time.Millisecond,
		UpdatesPerCandle: 2,
		Seed:             1,
		Start:            start,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(sim.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sim.Run(ctx)

	feed := binance.New(binance.Config{
		BaseURL:        "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Interval:       "1m",
		InitialBackoff: 10 * time.Millisecond,
	})
	out := make(chan model.KlineUpdate, 16)
	go feed.Stream(ctx, "BTCUSDT", out)

	var got []model.Kline
	for len(got) < 3 {
		select {
		case u := <-out:
			require.True(t, u.Closed)
			got = append(got, u.Kline)
		case <-ctx.Done():
			t.Fatalf("received %d closed klines before timeout", len(got))
		}
	}
	for i := 1; i < len(got); i++ {
		assert.Equal(t, time.Minute, got[i].OpenTime.Sub(got[i-1].OpenTime))
	}
}

func TestServer_UnknownStreamAndHealth(t *testing.T) {
	sim, err := NewServer(Config{Symbols: []string{"BTCUSDT"}})
	require.NoError(t, err)
	ts := httptest.NewServer(sim.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/btcusdt@trade")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = NewServer(Config{Interval: "soon"})
	assert.Error(t, err)
}
