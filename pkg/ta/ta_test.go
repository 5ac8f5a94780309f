package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedsWithFirstValue(t *testing.T) {
	out := EMA([]float64{10, 11, 12}, 2)
	require.Len(t, out, 3)

	// alpha = 2/3
	assert.InDelta(t, 10.0, out[0], 1e-12)
	assert.InDelta(t, (2.0/3.0)*11+(1.0/3.0)*10, out[1], 1e-12)
}

func TestEMASkipsLeadingNaN(t *testing.T) {
	out := EMA([]float64{math.NaN(), math.NaN(), 5, 6}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 5.0, out[2], 1e-12)
	assert.False(t, math.IsNaN(out[3]))
}

func TestMACDSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	res := MACD(values, 12, 26, 9)

	require.Len(t, res.DIF, 60)
	require.Len(t, res.DEA, 60)
	require.Len(t, res.Hist, 60)

	// steadily rising input keeps fast EMA above slow EMA
	assert.Greater(t, res.DIF[59], 0.0)
	for i := range values {
		if !math.IsNaN(res.DIF[i]) && !math.IsNaN(res.DEA[i]) {
			assert.InDelta(t, 2*(res.DIF[i]-res.DEA[i]), res.Hist[i], 1e-12)
		}
	}
}

func TestCrossedAbove(t *testing.T) {
	a := []float64{1, 3}
	b := []float64{2, 2}
	assert.True(t, CrossedAbove(a, b))
	assert.False(t, CrossedBelow(a, b))

	// NaN never crosses
	assert.False(t, CrossedAbove([]float64{math.NaN(), 3}, b))
}

func TestCrossedBelow(t *testing.T) {
	a := []float64{3, 1}
	b := []float64{2, 2}
	assert.True(t, CrossedBelow(a, b))
	assert.False(t, CrossedAbove(a, b))
}
