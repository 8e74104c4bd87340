package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// BollingerResult holds the three Bollinger Bands.
type BollingerResult struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// Bollinger calculates Bollinger Bands around SMA(period).
// The band width uses the population standard deviation of the same
// trailing window, so a flat window collapses all three bands onto the price.
func Bollinger(prices []float64, period int, mult float64) BollingerResult {
	middle := SMA(prices, period)
	upper := undefined(len(prices))
	lower := undefined(len(prices))

	for i, m := range middle {
		if !m.Valid {
			continue
		}
		window := prices[i-period+1 : i+1]
		// MomentAbout(2, ...) divides by the window length: population variance.
		std := math.Sqrt(stat.MomentAbout(2, window, m.Float, nil))
		upper[i] = Some(m.Float + mult*std)
		lower[i] = Some(m.Float - mult*std)
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
