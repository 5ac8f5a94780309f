// Package ta holds the small set of technical indicators strategies use.
// Series are float64 slices aligned to their input; warmup slots are NaN.
package ta

import "math"

// EMA computes an exponential moving average with smoothing 2/(n+1). The
// first non-NaN input seeds the average; leading NaNs stay NaN.
func EMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)

	seeded := false
	var prev float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// MACDResult carries the three MACD series.
type MACDResult struct {
	DIF  []float64
	DEA  []float64
	Hist []float64
}

// MACD computes DIF = EMA(fast) - EMA(slow), DEA = EMA(DIF, signal) and
// Hist = 2 * (DIF - DEA).
func MACD(values []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	dif := make([]float64, len(values))
	for i := range values {
		dif[i] = emaFast[i] - emaSlow[i]
	}

	dea := EMA(dif, signal)

	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = 2 * (dif[i] - dea[i])
	}

	return MACDResult{DIF: dif, DEA: dea, Hist: hist}
}

// CrossedAbove reports a cross of a over b between the last two slots of
// both series. NaN slots never cross.
func CrossedAbove(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	prev := a[n-2] - b[n-2]
	curr := a[n-1] - b[n-1]
	if math.IsNaN(prev) || math.IsNaN(curr) {
		return false
	}
	return prev <= 0 && curr > 0
}

// CrossedBelow reports a cross of a under b between the last two slots.
func CrossedBelow(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	prev := a[n-2] - b[n-2]
	curr := a[n-1] - b[n-1]
	if math.IsNaN(prev) || math.IsNaN(curr) {
		return false
	}
	return prev >= 0 && curr < 0
}
