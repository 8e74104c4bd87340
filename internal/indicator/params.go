package indicator

import (
	"fmt"
	"time"

	"signal-engine/internal/model"
)

// Params configures the indicator periods used by Compute.
type Params struct {
	MACDFast   int     `json:"macdFast"`
	MACDSlow   int     `json:"macdSlow"`
	MACDSignal int     `json:"macdSignal"`
	RSIPeriod  int     `json:"rsiPeriod"`
	StochK     int     `json:"stochK"`
	StochD     int     `json:"stochD"`
	BollPeriod int     `json:"bollPeriod"`
	BollMult   float64 `json:"bollMult"`
}

// DefaultParams returns the conventional periods: MACD 12/26/9, RSI 14,
// Stochastic 14/3, Bollinger 20 x 2.
func DefaultParams() Params {
	return Params{
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		RSIPeriod:  14,
		StochK:     14,
		StochD:     3,
		BollPeriod: 20,
		BollMult:   2,
	}
}

// Validate checks every period is positive and MACD fast < slow.
func (p Params) Validate() error {
	checks := []struct {
		name string
		v    int
	}{
		{"macdFast", p.MACDFast},
		{"macdSlow", p.MACDSlow},
		{"macdSignal", p.MACDSignal},
		{"rsiPeriod", p.RSIPeriod},
		{"stochK", p.StochK},
		{"stochD", p.StochD},
		{"bollPeriod", p.BollPeriod},
	}
	for _, c := range checks {
		if c.v < 1 {
			return fmt.Errorf("indicator: %s must be >= 1, got %d", c.name, c.v)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("indicator: macdFast (%d) must be < macdSlow (%d)", p.MACDFast, p.MACDSlow)
	}
	if p.BollMult <= 0 {
		return fmt.Errorf("indicator: bollMult must be > 0, got %v", p.BollMult)
	}
	return nil
}

// Bundle is the full indicator set for one candle window, aligned with it.
type Bundle struct {
	OpenTimes []time.Time     `json:"openTimes"`
	MACD      MACDResult      `json:"macd"`
	RSI       Series          `json:"rsi"`
	Stoch     StochResult     `json:"stochastic"`
	Bollinger BollingerResult `json:"bollinger"`
}

// Len returns the number of candles the bundle was computed over.
func (b Bundle) Len() int { return len(b.OpenTimes) }

// Compute recomputes every indicator over klines.
func Compute(klines []model.Kline, p Params) Bundle {
	closes := model.Closes(klines)
	return Bundle{
		OpenTimes: model.OpenTimes(klines),
		MACD:      MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal),
		RSI:       RSI(closes, p.RSIPeriod),
		Stoch:     Stochastic(model.Highs(klines), model.Lows(klines), closes, p.StochK, p.StochD),
		Bollinger: Bollinger(closes, p.BollPeriod, p.BollMult),
	}
}
