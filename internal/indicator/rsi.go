// Package indicator computes the momentum indicator emitted by the engine.
package indicator

// DefaultRSIPeriod is the number of price changes averaged per reading.
const DefaultRSIPeriod = 14

// RSI computes the Relative Strength Index over the newest period+1 prices.
//
// Gains and losses are plain averages of the period deltas in that trailing
// window. This is not Wilder's exponentially smoothed RSI: every reading
// depends only on the last period+1 prices, so values differ from charting
// tools once the series is longer than the window. Downstream consumers are
// calibrated against this form.
//
// Returns false when fewer than period+1 prices are available or period < 1.
func RSI(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) < period+1 {
		return 0, false
	}
	window := prices[len(prices)-(period+1):]

	var gainSum, lossSum float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum -= d
		}
	}

	p := float64(period)
	avgGain := gainSum / p
	avgLoss := lossSum / p
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
