package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cta_runtime/internal/core"
)

func snapshotsFromEquity(equity ...float64) []WindowSnapshot {
	out := make([]WindowSnapshot, len(equity))
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range equity {
		out[i] = WindowSnapshot{
			Time:    base.AddDate(0, 0, i),
			Account: &core.Account{Equity: d(v)},
		}
	}
	return out
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(nil, 240, 0)
	assert.Zero(t, stats.TotalReturn)
}

func TestComputeStatisticsTotalReturn(t *testing.T) {
	stats := ComputeStatistics(snapshotsFromEquity(100, 110, 121), 240, 0)
	assert.InDelta(t, 0.21, stats.TotalReturn, 1e-9)
	assert.InDelta(t, 0.10, stats.DailyMean, 1e-9)
	assert.Zero(t, stats.MaxDrawdown)
}

func TestComputeStatisticsDrawdown(t *testing.T) {
	stats := ComputeStatistics(snapshotsFromEquity(100, 120, 90, 110), 240, 0)
	// trough 90 against peak 120
	assert.InDelta(t, 0.25, stats.MaxDrawdown, 1e-9)
}

func TestComputeStatisticsSharpe(t *testing.T) {
	stats := ComputeStatistics(snapshotsFromEquity(100, 101, 102.01, 103.0301), 240, 0)
	require.False(t, math.IsNaN(stats.Sharpe))
	// constant 1% per window returns drive the std toward zero, so the
	// epsilon keeps the ratio finite but very large
	assert.Greater(t, stats.Sharpe, 0.0)
	assert.InDelta(t, math.Pow(1.01, 240)-1, stats.AnnualReturn, 1e-6)
}

func TestComputeStatisticsFlatCurve(t *testing.T) {
	stats := ComputeStatistics(snapshotsFromEquity(100, 100, 100), 240, 0)
	assert.Zero(t, stats.TotalReturn)
	assert.Zero(t, stats.MaxDrawdown)
	assert.InDelta(t, 0, stats.DailyMean, 1e-12)
}
