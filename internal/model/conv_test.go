package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKlineTuple_StringsAndNumbers(t *testing.T) {
	raw := `[1714521600000, "50000.10", 50100, "49900.00", "50050.5", "12.5", 1714521659999, "625000", 101, "6.25", "312500", "0"]`
	k, err := ParseKlineTuple([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, UnixMilli(1714521600000), k.OpenTime)
	assert.Equal(t, UnixMilli(1714521659999), k.CloseTime)
	assert.Equal(t, 50000.10, k.Open)
	assert.Equal(t, 50100.0, k.High)
	assert.Equal(t, 49900.0, k.Low)
	assert.Equal(t, 50050.5, k.Close)
	assert.Equal(t, 12.5, k.Volume)
	assert.Equal(t, int64(101), k.TradeCount)
	assert.Equal(t, "0", k.Ignore)
}

func TestParseKlineTuple_Errors(t *testing.T) {
	cases := map[string]string{
		"not array":  `{"a":1}`,
		"short":      `[1, "1", "1"]`,
		"bad price":  `[1, "x", "1", "1", "1", "1", 2, "1", 1, "1", "1", "0"]`,
		"float time": `[1.5, "1", "1", "1", "1", "1", 2, "1", 1, "1", "1", "0"]`,
		"bad trades": `[1, "1", "1", "1", "1", "1", 2, "1", "n", "1", "1", "0"]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKlineTuple([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseKlineTuple_RejectsNull(t *testing.T) {
	cases := map[string]string{
		"close":     `[1, "1", "1", "1", null, "1", 2, "1", 1, "1", "1", "0"]`,
		"volume":    `[1, "1", "1", "1", "1", null, 2, "1", 1, "1", "1", "0"]`,
		"openTime":  `[null, "1", "1", "1", "1", "1", 2, "1", 1, "1", "1", "0"]`,
		"trades":    `[1, "1", "1", "1", "1", "1", 2, "1", null, "1", "1", "0"]`,
		"closeTime": `[1, "1", "1", "1", "1", "1", null, "1", 1, "1", "1", "0"]`,
	}
	for field, raw := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := ParseKlineTuple([]byte(raw))
			require.Error(t, err)
			assert.ErrorContains(t, err, field)
			assert.ErrorIs(t, err, errNull)
		})
	}
}

func TestKlineTuple_RoundTrip(t *testing.T) {
	k := Kline{
		OpenTime: UnixMilli(1714521600000), Open: 1.5, High: 2, Low: 1, Close: 1.75,
		Volume: 10, CloseTime: UnixMilli(1714521659999), QuoteVolume: 17.5,
		TradeCount: 3, TakerBuyBaseVolume: 4, TakerBuyQuoteVolume: 7, Ignore: "0",
	}
	data, err := json.Marshal(k.Tuple())
	require.NoError(t, err)

	back, err := ParseKlineTuple(data)
	require.NoError(t, err)
	assert.Equal(t, k, back)
}

func TestParseKlineTuples_ReportsRow(t *testing.T) {
	_, err := ParseKlineTuples([]byte(`[[1, "1", "1", "1", "1", "1", 2, "1", 1, "1", "1", "0"], [1]]`))
	assert.ErrorContains(t, err, "row 1")
}

func TestColumns(t *testing.T) {
	ks := []Kline{{High: 3, Low: 1, Close: 2}, {High: 6, Low: 4, Close: 5}}
	assert.Equal(t, []float64{2, 5}, Closes(ks))
	assert.Equal(t, []float64{3, 6}, Highs(ks))
	assert.Equal(t, []float64{1, 4}, Lows(ks))
	assert.Equal(t, "1.25", FormatFloat(1.25))
}
