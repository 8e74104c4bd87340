package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// klineTupleLen is the arity of the exchange kline tuple:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// trades, takerBuyBase, takerBuyQuote, ignore].
const klineTupleLen = 12

// ParseKlineTuple decodes one 12-field kline tuple. Price and volume fields
// may be JSON numbers or numeric strings.
func ParseKlineTuple(data []byte) (Kline, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Kline{}, fmt.Errorf("model: decode kline tuple: %w", err)
	}
	if len(fields) != klineTupleLen {
		return Kline{}, fmt.Errorf("model: kline tuple has %d fields, want %d", len(fields), klineTupleLen)
	}

	var k Kline
	openMs, err := parseInt(fields[0])
	if err != nil {
		return Kline{}, fmt.Errorf("model: openTime: %w", err)
	}
	closeMs, err := parseInt(fields[6])
	if err != nil {
		return Kline{}, fmt.Errorf("model: closeTime: %w", err)
	}
	trades, err := parseInt(fields[8])
	if err != nil {
		return Kline{}, fmt.Errorf("model: trades: %w", err)
	}
	k.OpenTime = UnixMilli(openMs)
	k.CloseTime = UnixMilli(closeMs)
	k.TradeCount = trades

	floats := []struct {
		idx  int
		name string
		dst  *float64
	}{
		{1, "open", &k.Open},
		{2, "high", &k.High},
		{3, "low", &k.Low},
		{4, "close", &k.Close},
		{5, "volume", &k.Volume},
		{7, "quoteVolume", &k.QuoteVolume},
		{9, "takerBuyBaseVolume", &k.TakerBuyBaseVolume},
		{10, "takerBuyQuoteVolume", &k.TakerBuyQuoteVolume},
	}
	for _, f := range floats {
		v, err := parseFloat(fields[f.idx])
		if err != nil {
			return Kline{}, fmt.Errorf("model: %s: %w", f.name, err)
		}
		*f.dst = v
	}

	// The trailing field is unused by the exchange; keep it verbatim if it is a string.
	var ignore string
	if err := json.Unmarshal(fields[11], &ignore); err == nil {
		k.Ignore = ignore
	} else {
		k.Ignore = string(fields[11])
	}
	return k, nil
}

// ParseKlineTuples decodes a JSON array of kline tuples, the shape returned
// by the exchange REST klines endpoint.
func ParseKlineTuples(data []byte) ([]Kline, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("model: decode kline tuples: %w", err)
	}
	out := make([]Kline, 0, len(rows))
	for i, row := range rows {
		k, err := ParseKlineTuple(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Tuple encodes k back into the 12-field exchange form.
func (k Kline) Tuple() []any {
	return []any{
		k.OpenTime.UnixMilli(),
		FormatFloat(k.Open),
		FormatFloat(k.High),
		FormatFloat(k.Low),
		FormatFloat(k.Close),
		FormatFloat(k.Volume),
		k.CloseTime.UnixMilli(),
		FormatFloat(k.QuoteVolume),
		k.TradeCount,
		FormatFloat(k.TakerBuyBaseVolume),
		FormatFloat(k.TakerBuyQuoteVolume),
		k.Ignore,
	}
}

// ParseDecimalFloat parses an exchange numeric string into a float64.
func ParseDecimalFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// FormatFloat renders f without exponent and without trailing zeros.
func FormatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// errNull rejects JSON null, which decimal would otherwise read as zero.
var errNull = errors.New("value is null")

func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var d decimal.Decimal
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return d, errNull
	}
	err := d.UnmarshalJSON(raw)
	return d, err
}

func parseFloat(raw json.RawMessage) (float64, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

func parseInt(raw json.RawMessage) (int64, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%s is not an integer", d.String())
	}
	return d.IntPart(), nil
}
