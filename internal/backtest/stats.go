package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Statistics summarizes an equity curve of window snapshots.
type Statistics struct {
	TotalReturn  float64
	AnnualReturn float64
	Sharpe       float64
	MaxDrawdown  float64
	DailyMean    float64
	DailyStd     float64
}

// ComputeStatistics reduces the snapshot equity curve to headline numbers.
// Returns are per window; annualDays scales them to a yearly figure.
func ComputeStatistics(snapshots []WindowSnapshot, annualDays int, riskFree float64) Statistics {
	if len(snapshots) == 0 {
		return Statistics{}
	}

	equity := make([]float64, len(snapshots))
	for i, s := range snapshots {
		equity[i] = s.Account.Equity.InexactFloat64()
	}

	var stats Statistics
	if equity[0] != 0 {
		stats.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}

	if len(returns) > 0 {
		stats.DailyMean = stat.Mean(returns, nil)
		stats.DailyStd = math.Sqrt(stat.Variance(returns, nil))
		if math.IsNaN(stats.DailyStd) {
			stats.DailyStd = 0
		}

		days := float64(annualDays)
		stats.Sharpe = (stats.DailyMean - riskFree/days) / (stats.DailyStd + 1e-9) * math.Sqrt(days)
		stats.AnnualReturn = math.Pow(1+stats.DailyMean, days) - 1
	}

	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > stats.MaxDrawdown {
				stats.MaxDrawdown = dd
			}
		}
	}

	return stats
}
