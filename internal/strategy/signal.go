// Package strategy turns indicator readings into discrete trading signals.
//
// The Detector evaluates a fixed, ordered rule set at the last candle of a
// window (and the one before it for crossover rules) and emits zero or more
// Signals. Detection is pure: the same window always yields the same ids.
package strategy

import (
	"sort"
	"time"

	"signal-engine/internal/indicator"
)

// SignalType is the trade direction of a signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Source names the rule that raised a signal.
type Source string

const (
	SourceMACDCrossover        Source = "MACD_CROSSOVER"
	SourceRSIOverbought        Source = "RSI_OVERBOUGHT"
	SourceRSIOversold          Source = "RSI_OVERSOLD"
	SourceRSIBreakdown         Source = "RSI_BREAKDOWN"
	SourceStochOverbought      Source = "STOCH_OVERBOUGHT"
	SourceStochOversold        Source = "STOCH_OVERSOLD"
	SourceBollingerTouchLower  Source = "BOLLINGER_TOUCH_LOWER"
	SourceBollingerTouchUpper  Source = "BOLLINGER_TOUCH_UPPER"
	SourceMultipleConfirmation Source = "MULTIPLE_CONFIRMATION"
)

// Sources lists every rule source in evaluation order.
var Sources = []Source{
	SourceMACDCrossover,
	SourceRSIOverbought,
	SourceRSIOversold,
	SourceRSIBreakdown,
	SourceStochOverbought,
	SourceStochOversold,
	SourceBollingerTouchLower,
	SourceBollingerTouchUpper,
	SourceMultipleConfirmation,
}

// Snapshot carries the indicator readings that justified a signal.
// Readings a rule does not use are left undefined.
type Snapshot struct {
	RSI        indicator.Value `json:"rsi"`
	MACD       indicator.Value `json:"macd"`
	MACDSignal indicator.Value `json:"macdSignal"`
	StochK     indicator.Value `json:"stochK"`
	StochD     indicator.Value `json:"stochD"`
}

// Signal is one detected trading signal.
type Signal struct {
	ID         string     `json:"id"`
	Type       SignalType `json:"type"`
	Source     Source     `json:"source"`
	Symbol     string     `json:"symbol"`
	Timestamp  time.Time  `json:"timestamp"`
	Price      float64    `json:"price"`
	Message    string     `json:"message"`
	Strength   float64    `json:"strength"` // 0..100
	Indicators Snapshot   `json:"indicators"`
}

// StrongThreshold is the strength at and above which a signal is highlighted.
const StrongThreshold = 70.0

// Strong reports whether s should be highlighted to the user.
func (s Signal) Strong() bool { return s.Strength >= StrongThreshold }

// SortByStrength orders signals by descending strength, keeping detection
// order among equal strengths.
func SortByStrength(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Strength > signals[j].Strength
	})
}
