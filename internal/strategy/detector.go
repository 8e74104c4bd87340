package strategy

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// MinCandles is the smallest window the Detector evaluates.
const MinCandles = 50

// Rule thresholds.
const (
	rsiOverbought   = 70.0
	rsiOversold     = 30.0
	rsiMidline      = 50.0
	stochOverbought = 80.0
	stochOversold   = 20.0
	bollLowerTouch  = 1.001
	bollUpperTouch  = 0.999
	confirmBonus    = 10.0
)

// frame holds the readings one evaluation works from.
type frame struct {
	symbol string
	at     time.Time
	price  float64

	rsi, prevRSI               indicator.Value
	macd, prevMACD             indicator.Value
	macdSignal, prevMACDSignal indicator.Value
	stochK, stochD             indicator.Value
	bollUpper, bollLower       indicator.Value
}

func (f *frame) signal(tag string, typ SignalType, src Source, strength float64, msg string, snap Snapshot) Signal {
	return Signal{
		ID:         fmt.Sprintf("%s-%d-%s", f.symbol, f.at.UnixMilli(), tag),
		Type:       typ,
		Source:     src,
		Symbol:     f.symbol,
		Timestamp:  f.at,
		Price:      f.price,
		Message:    msg,
		Strength:   strength,
		Indicators: snap,
	}
}

func (f *frame) all() Snapshot {
	return Snapshot{RSI: f.rsi, MACD: f.macd, MACDSignal: f.macdSignal, StochK: f.stochK, StochD: f.stochD}
}

// rule appends the signals it raises to raised and returns the result.
type rule func(f *frame, raised []Signal) []Signal

// Detector evaluates the signal rule set over a candle window.
type Detector struct {
	params indicator.Params
	rules  []rule
}

// NewDetector creates a detector using the given indicator periods.
func NewDetector(params indicator.Params) *Detector {
	return &Detector{
		params: params,
		rules: []rule{
			macdCrossover,
			rsiLevels,
			stochLevels,
			bollingerTouch,
			multipleConfirmation,
		},
	}
}

// Params returns the indicator periods the detector computes with.
func (d *Detector) Params() indicator.Params { return d.params }

// Detect computes indicators over klines and evaluates the rules at the last
// candle. Windows shorter than MinCandles yield no signals.
func (d *Detector) Detect(klines []model.Kline, symbol string) []Signal {
	if len(klines) < MinCandles {
		return nil
	}
	return d.DetectBundle(klines, indicator.Compute(klines, d.params), symbol)
}

// DetectBundle evaluates the rules against a bundle already computed over klines.
func (d *Detector) DetectBundle(klines []model.Kline, b indicator.Bundle, symbol string) []Signal {
	if len(klines) < MinCandles {
		return nil
	}
	cur := len(klines) - 1
	prev := cur - 1
	f := &frame{
		symbol:         symbol,
		at:             klines[cur].OpenTime,
		price:          klines[cur].Close,
		rsi:            b.RSI.At(cur),
		prevRSI:        b.RSI.At(prev),
		macd:           b.MACD.MACD.At(cur),
		prevMACD:       b.MACD.MACD.At(prev),
		macdSignal:     b.MACD.Signal.At(cur),
		prevMACDSignal: b.MACD.Signal.At(prev),
		stochK:         b.Stoch.K.At(cur),
		stochD:         b.Stoch.D.At(cur),
		bollUpper:      b.Bollinger.Upper.At(cur),
		bollLower:      b.Bollinger.Lower.At(cur),
	}

	var signals []Signal
	for _, r := range d.rules {
		signals = r(f, signals)
	}
	return signals
}

// ── Rules ──

func macdCrossover(f *frame, raised []Signal) []Signal {
	if !f.macd.Valid || !f.macdSignal.Valid || !f.prevMACD.Valid || !f.prevMACDSignal.Valid {
		return raised
	}
	m, s := f.macd.Float, f.macdSignal.Float
	pm, ps := f.prevMACD.Float, f.prevMACDSignal.Float
	snap := Snapshot{MACD: f.macd, MACDSignal: f.macdSignal}

	if m > s && pm <= ps {
		raised = append(raised, f.signal("macd-buy", SignalBuy, SourceMACDCrossover, 75,
			fmt.Sprintf("Bullish MACD crossover: MACD (%s) > Signal (%s)", fixed(m, 4), fixed(s, 4)), snap))
	}
	if m < s && pm >= ps {
		raised = append(raised, f.signal("macd-sell", SignalSell, SourceMACDCrossover, 75,
			fmt.Sprintf("Bearish MACD crossover: MACD (%s) < Signal (%s)", fixed(m, 4), fixed(s, 4)), snap))
	}
	return raised
}

func rsiLevels(f *frame, raised []Signal) []Signal {
	if !f.rsi.Valid {
		return raised
	}
	r := f.rsi.Float
	snap := Snapshot{RSI: f.rsi}

	if r > rsiOverbought {
		raised = append(raised, f.signal("rsi-overbought", SignalSell, SourceRSIOverbought, 60,
			fmt.Sprintf("RSI overbought: %s (threshold 70)", fixed(r, 2)), snap))
	}
	if r < rsiOversold {
		raised = append(raised, f.signal("rsi-oversold", SignalBuy, SourceRSIOversold, 60,
			fmt.Sprintf("RSI oversold: %s (threshold 30)", fixed(r, 2)), snap))
	}
	if f.prevRSI.Valid && r < rsiMidline && f.prevRSI.Float >= rsiMidline {
		raised = append(raised, f.signal("rsi-breakdown", SignalSell, SourceRSIBreakdown, 70,
			fmt.Sprintf("RSI breakdown: %s (crossed below 50)", fixed(r, 2)), snap))
	}
	return raised
}

func stochLevels(f *frame, raised []Signal) []Signal {
	if !f.stochK.Valid || !f.stochD.Valid {
		return raised
	}
	k, d := f.stochK.Float, f.stochD.Float
	snap := Snapshot{StochK: f.stochK, StochD: f.stochD}

	if k > stochOverbought || d > stochOverbought {
		raised = append(raised, f.signal("stoch-overbought", SignalSell, SourceStochOverbought, 55,
			fmt.Sprintf("Stochastic overbought: %%K=%s, %%D=%s", fixed(k, 2), fixed(d, 2)), snap))
	}
	if k < stochOversold || d < stochOversold {
		raised = append(raised, f.signal("stoch-oversold", SignalBuy, SourceStochOversold, 55,
			fmt.Sprintf("Stochastic oversold: %%K=%s, %%D=%s", fixed(k, 2), fixed(d, 2)), snap))
	}
	return raised
}

func bollingerTouch(f *frame, raised []Signal) []Signal {
	if !f.bollLower.Valid || !f.bollUpper.Valid {
		return raised
	}
	// Both touches can fire together when the bands collapse onto the price.
	if f.price <= f.bollLower.Float*bollLowerTouch {
		raised = append(raised, f.signal("bb-lower", SignalBuy, SourceBollingerTouchLower, 65,
			fmt.Sprintf("Price touched lower Bollinger band: %s", fixed(f.price, 4)), Snapshot{}))
	}
	if f.price >= f.bollUpper.Float*bollUpperTouch {
		raised = append(raised, f.signal("bb-upper", SignalSell, SourceBollingerTouchUpper, 65,
			fmt.Sprintf("Price touched upper Bollinger band: %s", fixed(f.price, 4)), Snapshot{}))
	}
	return raised
}

func multipleConfirmation(f *frame, raised []Signal) []Signal {
	buys := countAndMean(raised, SignalBuy)
	sells := countAndMean(raised, SignalSell)

	if buys.n >= 2 {
		raised = append(raised, f.signal("multiple-buy", SignalBuy, SourceMultipleConfirmation,
			math.Min(100, buys.mean+confirmBonus),
			fmt.Sprintf("BUY confirmed by %d indicators", buys.n), f.all()))
	}
	if sells.n >= 2 {
		raised = append(raised, f.signal("multiple-sell", SignalSell, SourceMultipleConfirmation,
			math.Min(100, sells.mean+confirmBonus),
			fmt.Sprintf("SELL confirmed by %d indicators", sells.n), f.all()))
	}
	return raised
}

type tally struct {
	n    int
	mean float64
}

func countAndMean(signals []Signal, typ SignalType) tally {
	var t tally
	sum := 0.0
	for _, s := range signals {
		if s.Type == typ {
			t.n++
			sum += s.Strength
		}
	}
	if t.n > 0 {
		t.mean = sum / float64(t.n)
	}
	return t
}

// fixed formats f with the given number of decimals.
func fixed(f float64, places int32) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', int(places), 64)
	}
	return decimal.NewFromFloat(f).StringFixed(places)
}
