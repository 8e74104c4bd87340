package indicator

// MACDResult holds the three MACD series, aligned with the input prices.
type MACDResult struct {
	MACD      Series `json:"macd"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// MACD calculates Moving Average Convergence Divergence.
//
// The MACD line is EMA(fast)-EMA(slow) and is defined from index slow-1.
// The signal line is the EMA(signal) of the contiguous defined MACD tail,
// so its first value sits at slow-1+signal-1. The histogram is defined where
// both lines are. Input shorter than slow+signal yields empty series.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if fast < 1 || slow < 1 || signal < 1 || len(prices) < slow+signal {
		return MACDResult{MACD: Series{}, Signal: Series{}, Histogram: Series{}}
	}

	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	line := undefined(len(prices))
	for i := range prices {
		if emaFast[i].Valid && emaSlow[i].Valid {
			line[i] = Some(emaFast[i].Float - emaSlow[i].Float)
		}
	}

	sig := undefined(len(prices))
	hist := undefined(len(prices))

	start := line.FirstValid()
	if start < 0 {
		return MACDResult{MACD: line, Signal: sig, Histogram: hist}
	}
	tail := make([]float64, 0, len(prices)-start)
	for _, v := range line[start:] {
		if !v.Valid {
			break
		}
		tail = append(tail, v.Float)
	}

	for j, v := range EMA(tail, signal) {
		sig[start+j] = v
	}
	for i := range prices {
		if line[i].Valid && sig[i].Valid {
			hist[i] = Some(line[i].Float - sig[i].Float)
		}
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
