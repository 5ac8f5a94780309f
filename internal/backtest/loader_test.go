package backtest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cta_runtime/internal/core"
)

const sampleCSV = `symbol,open,high,low,close,datetime,ktype
MHI2507,3500,3520,3490,3510,2025-07-01 09:30:00,1m
MHI2507,3510,3530,3505,3525,2025-07-01 09:31:00,1m
MHI2507,3500,3530,3490,3525,2025-07-01 00:00:00,1d
MHI2508,3550,3560,3540,3555,2025-07-01 09:30:00,1m
`

func TestReadBarsSplitsSeries(t *testing.T) {
	series, err := ReadBars(strings.NewReader(sampleCSV), core.ExchangeHKFE)
	require.NoError(t, err)
	require.Len(t, series, 3)

	byKey := make(map[string]*Series)
	for _, s := range series {
		byKey[s.Symbol+"|"+s.Interval.String()] = s
	}

	minutes := byKey["MHI2507|1m"]
	require.NotNil(t, minutes)
	require.Len(t, minutes.Bars, 2)
	assert.Equal(t, core.ExchangeHKFE, minutes.Bars[0].Exchange)
	assert.Equal(t, time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC), minutes.Bars[0].Datetime)
	assert.True(t, minutes.Bars[0].Open.Equal(di(3500)))
	assert.True(t, minutes.Bars[1].Close.Equal(di(3525)))

	daily := byKey["MHI2507|1d"]
	require.NotNil(t, daily)
	assert.Equal(t, core.IntervalDay, daily.Interval)

	other := byKey["MHI2508|1m"]
	require.NotNil(t, other)
	require.Len(t, other.Bars, 1)
}

func TestReadBarsSortsWithinSeries(t *testing.T) {
	shuffled := `symbol,open,high,low,close,datetime,ktype
MHI2507,3510,3530,3505,3525,2025-07-01 09:31:00,1m
MHI2507,3500,3520,3490,3510,2025-07-01 09:30:00,1m
`
	series, err := ReadBars(strings.NewReader(shuffled), core.ExchangeHKFE)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.True(t, series[0].Bars[0].Datetime.Before(series[0].Bars[1].Datetime))
}

func TestReadBarsMissingColumn(t *testing.T) {
	_, err := ReadBars(strings.NewReader("symbol,open,high,low,close,datetime\n"), core.ExchangeHKFE)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ktype")
}

func TestReadBarsBadInterval(t *testing.T) {
	bad := `symbol,open,high,low,close,datetime,ktype
MHI2507,1,1,1,1,2025-07-01 09:30:00,7m
`
	_, err := ReadBars(strings.NewReader(bad), core.ExchangeHKFE)
	assert.Error(t, err)
}

func TestIntervals(t *testing.T) {
	series, err := ReadBars(strings.NewReader(sampleCSV), core.ExchangeHKFE)
	require.NoError(t, err)

	ivs := Intervals(series)
	assert.ElementsMatch(t, []core.Interval{core.Interval1m, core.IntervalDay}, ivs)
	assert.Equal(t, core.Interval1m, core.MinInterval(ivs))
	assert.Equal(t, core.IntervalDay, core.MaxInterval(ivs))
}
