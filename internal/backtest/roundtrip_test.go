package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cta_runtime/internal/core"
	"cta_runtime/internal/engine"
	"cta_runtime/internal/event"
	"cta_runtime/internal/oms"
	"cta_runtime/internal/strategy"
)

// wires the run the way cmd/backtest does: matcher, accountant, netted
// position book, request firewall and a strategy runner on one sync bus.
func newTradingRun(t *testing.T) (*Engine, *oms.OMS) {
	t.Helper()
	bt := NewEngine(Config{StartingCash: di(1_000_000)}, nil)
	bt.Accountant().SetContract("MHI2507", ContractParams{
		Size: di(10), MarginRate: d(0.1),
	})
	store := oms.New(bt.Bus(), oms.PolicyNetting, nil)
	engine.New("backtest", bt.Bus(), bt.Gateway(), nil)
	return bt, store
}

func TestStrategyRoundTripThroughMatcher(t *testing.T) {
	bt, store := newTradingRun(t)

	policy := strategy.NewMacdCross("macd", "MHI2507", core.ExchangeHKFE, core.Interval1m, di(1))
	policy.SetWindows(3, 6, 3)
	strategy.NewRunner(policy, bt.Bus(), store, nil)

	closes := []float64{
		100, 99, 98, 97, 96, 95, // decline: dead cross with nothing to close
		96, 97, 98, 99, 100, 101, 102, 103, // rally: golden cross opens
		102, 100, 98, 96, 94, 92, // decline: dead cross closes
		93, 94, 95, 96, 97, 98, 99, 100, 101, 102, // second rally re-opens
	}
	start := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	bars := make([]*core.Bar, len(closes))
	for i, px := range closes {
		bars[i] = minuteBar(start.Add(time.Duration(i)*time.Minute), px, px, px, px)
	}

	bt.Run([]*Series{{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Interval: core.Interval1m, Bars: bars,
	}})

	trades := bt.Accountant().Trades()
	require.Len(t, trades, 3)

	entry, exit, reentry := trades[0], trades[1], trades[2]
	assert.Equal(t, core.DirectionLong, entry.Direction)
	assert.Equal(t, core.OffsetOpen, entry.Offset)
	eq(t, di(96), entry.Price)

	assert.Equal(t, core.DirectionShort, exit.Direction)
	assert.Equal(t, core.OffsetClose, exit.Offset)
	eq(t, di(1), exit.Volume)
	eq(t, di(102), exit.Price)

	assert.Equal(t, core.DirectionLong, reentry.Direction)
	eq(t, di(94), reentry.Price)

	// round trip realized (102-96)*1*10
	eq(t, di(60), bt.Accountant().Account().RealizedPnL)

	pos := bt.Accountant().Position("MHI2507")
	require.NotNil(t, pos)
	assert.Equal(t, core.DirectionLong, pos.Direction)
	eq(t, di(1), pos.Volume)

	// the netted book agrees with the accountant
	netted := store.GetPosition("MHI2507.HKFE")
	require.NotNil(t, netted)
	eq(t, di(1), netted.SignedVolume())

	// every order filled; none was self-cancelled between ack and match
	assert.Empty(t, store.GetAllActiveOrders())
	orders := store.GetAllOrders()
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, core.StatusAllTraded, o.Status)
	}
}

func TestPositionBookNetsMatcherFills(t *testing.T) {
	bt, store := newTradingRun(t)
	g := bt.Gateway()
	start := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeMarket, Volume: di(2),
	})
	g.OnBar(minuteBar(start, 3500, 3510, 3495, 3505))

	pos := store.GetPosition("MHI2507.HKFE")
	require.NotNil(t, pos)
	assert.Equal(t, core.DirectionLong, pos.Direction)
	eq(t, di(2), pos.SignedVolume())

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionShort, Type: core.TypeMarket, Volume: di(2),
	})
	g.OnBar(minuteBar(start.Add(time.Minute), 3520, 3525, 3515, 3520))

	// flat after the closing fill, in both books
	assert.Nil(t, store.GetPosition("MHI2507.HKFE"))
	assert.Nil(t, bt.Accountant().Position("MHI2507"))
}

func TestRequestEventsReachTheMatcher(t *testing.T) {
	bt, store := newTradingRun(t)

	req := &core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeLimit,
		Price: di(3490), Volume: di(1), Reference: "macd:entry",
	}
	bt.Bus().Put(event.New(event.TopicOrderReq, req))

	// the firewall forwarded the request and the matcher booked it
	require.Len(t, bt.Gateway().ActiveOrders(), 1)
	require.Len(t, store.GetAllActiveOrders(), 1)
	assert.Equal(t, "macd:entry", store.GetAllActiveOrders()[0].Reference)
}
