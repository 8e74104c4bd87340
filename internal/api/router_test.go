package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/monitor"
	"signal-engine/internal/strategy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type monitorSet map[string]*monitor.Monitor

func (s monitorSet) Symbols() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func (s monitorSet) Monitor(symbol string) (*monitor.Monitor, bool) {
	m, ok := s[symbol]
	return m, ok
}

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// flatMonitor returns a monitor that has surfaced the four flat-window
// signals from n constant closes.
func flatMonitor(t *testing.T, n int) *monitor.Monitor {
	t.Helper()
	m := monitor.New(monitor.Config{Symbol: "BTCUSDT"})
	klines := make([]model.Kline, n-1)
	for i := range klines {
		open := t0.Add(time.Duration(i) * time.Minute)
		klines[i] = model.Kline{OpenTime: open, Open: 50, High: 50, Low: 50, Close: 50}
	}
	m.Seed(klines)
	open := t0.Add(time.Duration(n-1) * time.Minute)
	_, err := m.ApplyCandleUpdate(model.KlineUpdate{
		Symbol: "BTCUSDT",
		Closed: true,
		Kline:  model.Kline{OpenTime: open, Open: 50, High: 50, Low: 50, Close: 50},
	})
	require.NoError(t, err)
	return m
}

func serve(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Signals(t *testing.T) {
	r := NewRouter(Options{Monitors: monitorSet{"BTCUSDT": flatMonitor(t, 60)}})

	rec := serve(t, r, "/api/v1/signals/btcusdt")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbol  string            `json:"symbol"`
		Signals []strategy.Signal `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body.Symbol)
	require.Len(t, body.Signals, 4)
	assert.Equal(t, strategy.SourceRSIOverbought, body.Signals[0].Source)

	rec = serve(t, r, "/api/v1/signals/BTCUSDT?sort=strength")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, strategy.SourceMultipleConfirmation, body.Signals[0].Source)
	assert.Equal(t, 72.5, body.Signals[0].Strength)

	rec = serve(t, r, "/api/v1/signals/BTCUSDT?sort=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_LastSignal(t *testing.T) {
	empty := monitor.New(monitor.Config{Symbol: "ETHUSDT"})
	r := NewRouter(Options{Monitors: monitorSet{"BTCUSDT": flatMonitor(t, 60), "ETHUSDT": empty}})

	rec := serve(t, r, "/api/v1/signals/BTCUSDT/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var s strategy.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, strategy.SourceRSIOverbought, s.Source)

	assert.Equal(t, http.StatusNotFound, serve(t, r, "/api/v1/signals/ETHUSDT/last").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, r, "/api/v1/signals/XRPUSDT").Code)
}

func TestRouter_KlinesAndIndicators(t *testing.T) {
	r := NewRouter(Options{Monitors: monitorSet{"BTCUSDT": flatMonitor(t, 60)}})

	rec := serve(t, r, "/api/v1/klines/BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	var kb struct {
		Klines []model.Kline `json:"klines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kb))
	assert.Len(t, kb.Klines, 60)

	rec = serve(t, r, "/api/v1/indicators/BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	var ib struct {
		Candles int    `json:"candles"`
		Latest  latest `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ib))
	assert.Equal(t, 60, ib.Candles)
	assert.Equal(t, 100.0, ib.Latest.RSI.Float)
	assert.Equal(t, 50.0, ib.Latest.BBMiddle.Float)
	assert.True(t, ib.Latest.MACD.Valid)

	assert.Equal(t, http.StatusOK, serve(t, r, "/api/v1/indicators/BTCUSDT?full=true").Code)
}

func TestRouter_SymbolsHealthMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.StaleKlines.WithLabelValues("BTCUSDT").Inc()
	health := metrics.NewHealthStatus([]string{"BTCUSDT"})
	health.SetFeedConnected("BTCUSDT", true)

	r := NewRouter(Options{
		Monitors: monitorSet{"BTCUSDT": flatMonitor(t, 60)},
		Health:   health,
		Gatherer: reg,
	})

	rec := serve(t, r, "/api/v1/symbols")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbols":["BTCUSDT"]}`, rec.Body.String())

	rec = serve(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = serve(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signald_stale_klines_total{symbol="BTCUSDT"} 1`)
}
