package indicator

import "gonum.org/v1/gonum/floats"

// SMA calculates the trailing Simple Moving Average of prices.
// Positions before period-1 are undefined.
func SMA(prices []float64, period int) Series {
	out := undefined(len(prices))
	if period < 1 || len(prices) < period {
		return out
	}
	for i := period - 1; i < len(prices); i++ {
		out[i] = Some(floats.Sum(prices[i-period+1:i+1]) / float64(period))
	}
	return out
}
