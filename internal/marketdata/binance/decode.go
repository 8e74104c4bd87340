package binance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"signal-engine/internal/model"
)

// ErrNotKline is returned for well-formed events that are not kline events
// (subscription acks, other stream types).
var ErrNotKline = errors.New("binance: not a kline event")

// DecodeKlineEvent decodes a kline websocket event. Combined-stream envelopes
// ({"stream": ..., "data": {...}}) are unwrapped.
func DecodeKlineEvent(data []byte) (model.KlineUpdate, error) {
	if !gjson.ValidBytes(data) {
		return model.KlineUpdate{}, fmt.Errorf("binance: invalid json")
	}
	ev := gjson.ParseBytes(data)
	if inner := ev.Get("data"); inner.IsObject() {
		ev = inner
	}
	if ev.Get("e").String() != "kline" {
		return model.KlineUpdate{}, ErrNotKline
	}

	k := ev.Get("k")
	if !k.IsObject() {
		return model.KlineUpdate{}, fmt.Errorf("binance: kline event without k")
	}

	symbol := k.Get("s").String()
	if symbol == "" {
		symbol = ev.Get("s").String()
	}
	if symbol == "" {
		return model.KlineUpdate{}, fmt.Errorf("binance: kline event without symbol")
	}

	var kl model.Kline
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"o", &kl.Open},
		{"h", &kl.High},
		{"l", &kl.Low},
		{"c", &kl.Close},
		{"v", &kl.Volume},
		{"q", &kl.QuoteVolume},
		{"V", &kl.TakerBuyBaseVolume},
		{"Q", &kl.TakerBuyQuoteVolume},
	} {
		v := k.Get(f.key)
		if !v.Exists() {
			return model.KlineUpdate{}, fmt.Errorf("binance: kline field %q missing", f.key)
		}
		parsed, err := model.ParseDecimalFloat(v.String())
		if err != nil {
			return model.KlineUpdate{}, fmt.Errorf("binance: kline field %q: %w", f.key, err)
		}
		*f.dst = parsed
	}

	open := k.Get("t")
	if !open.Exists() {
		return model.KlineUpdate{}, fmt.Errorf("binance: kline field \"t\" missing")
	}
	kl.OpenTime = model.UnixMilli(open.Int())
	kl.CloseTime = model.UnixMilli(k.Get("T").Int())
	kl.TradeCount = k.Get("n").Int()
	kl.Ignore = k.Get("B").String()

	return model.KlineUpdate{
		Symbol: strings.ToUpper(symbol),
		Kline:  kl,
		Closed: k.Get("x").Bool(),
	}, nil
}
