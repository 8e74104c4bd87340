package model

import (
	"encoding/json"
	"time"
)

// Kline is one OHLCV candle for a single symbol and interval.
// OpenTime is the identity key: two klines with the same OpenTime describe
// the same candle, the later one being the more recent state of it.
type Kline struct {
	OpenTime            time.Time `json:"openTime"`
	Open                float64   `json:"open"`
	High                float64   `json:"high"`
	Low                 float64   `json:"low"`
	Close               float64   `json:"close"`
	Volume              float64   `json:"volume"`
	CloseTime           time.Time `json:"closeTime"`
	QuoteVolume         float64   `json:"quoteVolume"`
	TradeCount          int64     `json:"trades"`
	TakerBuyBaseVolume  float64   `json:"takerBuyBaseVolume"`
	TakerBuyQuoteVolume float64   `json:"takerBuyQuoteVolume"`
	Ignore              string    `json:"ignore,omitempty"`
}

// KlineUpdate is a single inbound record from a kline feed.
// Closed is false while the candle is still forming.
type KlineUpdate struct {
	Symbol string `json:"symbol"`
	Kline  Kline  `json:"kline"`
	Closed bool   `json:"closed"`
}

// JSON returns the JSON-encoded kline (ignoring errors for hot-path usage).
func (k *Kline) JSON() []byte {
	b, _ := json.Marshal(k)
	return b
}

// Closes returns the close column of klines.
func Closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i := range klines {
		out[i] = klines[i].Close
	}
	return out
}

// Highs returns the high column of klines.
func Highs(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i := range klines {
		out[i] = klines[i].High
	}
	return out
}

// Lows returns the low column of klines.
func Lows(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i := range klines {
		out[i] = klines[i].Low
	}
	return out
}

// OpenTimes returns the OpenTime column of klines.
func OpenTimes(klines []Kline) []time.Time {
	out := make([]time.Time, len(klines))
	for i := range klines {
		out[i] = klines[i].OpenTime
	}
	return out
}

// UnixMilli converts exchange millisecond timestamps to UTC time.
func UnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
