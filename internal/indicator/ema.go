package indicator

// EMA calculates the Exponential Moving Average of prices.
//
// The first defined value sits at period-1 and is the simple mean of the first
// period prices; after that ema[i] = (p[i]-ema[i-1])*k + ema[i-1] with
// k = 2/(period+1). Shorter input yields an all-undefined series.
func EMA(prices []float64, period int) Series {
	out := undefined(len(prices))
	if period < 1 || len(prices) < period {
		return out
	}

	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for _, p := range prices[:period] {
		sum += p
	}
	current := sum / float64(period)
	out[period-1] = Some(current)

	for i := period; i < len(prices); i++ {
		current = (prices[i]-current)*multiplier + current
		out[i] = Some(current)
	}
	return out
}
