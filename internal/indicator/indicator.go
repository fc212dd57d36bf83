// Package indicator provides technical indicator calculations over price series.
//
// All functions are pure and re-entrant. Insufficient data is never an error:
// scalar indicators return an ok flag that is false until enough points exist.
package indicator

import "math"

// MACD holds the last value of each of the three MACD series.
type MACD struct {
	Line      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// macdSlowPeriod is the minimum history required before MACD is defined.
const macdSlowPeriod = 26

// MovingAverage returns the arithmetic mean of the last window elements.
// ok is false when fewer than window prices are available.
func MovingAverage(prices []float64, window int) (float64, bool) {
	if window <= 0 || len(prices) < window {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[len(prices)-window:] {
		sum += p
	}
	return sum / float64(window), true
}

// Volatility returns the population standard deviation of the last window
// elements (divides by window, not window-1). ok is false when fewer than
// window prices are available.
func Volatility(prices []float64, window int) (float64, bool) {
	if window <= 0 || len(prices) < window {
		return 0, false
	}
	slice := prices[len(prices)-window:]
	mean := 0.0
	for _, p := range slice {
		mean += p
	}
	mean /= float64(window)

	variance := 0.0
	for _, p := range slice {
		d := p - mean
		variance += d * d
	}
	variance /= float64(window)
	return math.Sqrt(variance), true
}

// EMA computes the exponential moving average series for the input.
// The output has the same length as the input; the first element seeds to
// series[0], then out[i] = series[i]*k + out[i-1]*(1-k) with k = 2/(period+1).
func EMA(series []float64, period int) []float64 {
	out := make([]float64, 0, len(series))
	if len(series) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out = append(out, series[0])
	for i := 1; i < len(series); i++ {
		out = append(out, series[i]*k+out[i-1]*(1-k))
	}
	return out
}

// ComputeMACD derives the MACD line (EMA12-EMA26), its 9-period signal line,
// and the histogram over the full price history, surfacing only the last
// element of each series. ok is false when fewer than 26 prices are available.
func ComputeMACD(prices []float64) (MACD, bool) {
	if len(prices) < macdSlowPeriod {
		return MACD{}, false
	}

	ema12 := EMA(prices, 12)
	ema26 := EMA(prices, 26)

	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = ema12[i] - ema26[i]
	}
	signal := EMA(line, 9)

	last := len(prices) - 1
	return MACD{
		Line:      line[last],
		Signal:    signal[last],
		Histogram: line[last] - signal[last],
	}, true
}
