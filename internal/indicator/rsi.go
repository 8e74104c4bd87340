package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
//
// The averages are seeded with the simple mean of the first period deltas and
// the first defined value sits at index period. When the average loss is zero
// the RSI is exactly 100, including a perfectly flat series.
func RSI(prices []float64, period int) Series {
	out := undefined(len(prices))
	if period < 1 || len(prices) < period+1 {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = Some(rsiFrom(avgGain, avgLoss))

	for i := period + 1; i < len(prices); i++ {
		gain, loss := split(prices[i] - prices[i-1])
		// Wilder's smoothing: avg = (prev * (period-1) + current) / period
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = Some(rsiFrom(avgGain, avgLoss))
	}
	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
