package indicator

import "gonum.org/v1/gonum/floats"

// StochResult holds the %K and %D lines of the Stochastic Oscillator.
type StochResult struct {
	K Series `json:"k"`
	D Series `json:"d"`
}

// neutralK is reported when the lookback high equals the lookback low.
const neutralK = 50.0

// Stochastic calculates the Stochastic Oscillator.
//
// %K[i] places close[i] within the highest high and lowest low of the
// trailing kPeriod window, scaled to 0..100. %D[i] is the mean of the
// defined %K values in the trailing dPeriod window. Inputs of unequal length
// yield empty series; inputs shorter than kPeriod yield undefined series.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) StochResult {
	if len(high) != len(low) || len(high) != len(close) {
		return StochResult{K: Series{}, D: Series{}}
	}
	n := len(close)
	k := undefined(n)
	d := undefined(n)
	if kPeriod < 1 || dPeriod < 1 || n < kPeriod {
		return StochResult{K: k, D: d}
	}

	for i := kPeriod - 1; i < n; i++ {
		highest := floats.Max(high[i-kPeriod+1 : i+1])
		lowest := floats.Min(low[i-kPeriod+1 : i+1])
		if highest == lowest {
			k[i] = Some(neutralK)
			continue
		}
		k[i] = Some((close[i] - lowest) / (highest - lowest) * 100)
	}

	for i := kPeriod - 1; i < n; i++ {
		start := i - dPeriod + 1
		if start < 0 {
			start = 0
		}
		sum, count := 0.0, 0
		for _, v := range k[start : i+1] {
			if v.Valid {
				sum += v.Float
				count++
			}
		}
		if count > 0 {
			d[i] = Some(sum / float64(count))
		}
	}
	return StochResult{K: k, D: d}
}
