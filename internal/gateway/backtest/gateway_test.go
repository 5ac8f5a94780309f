package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

type capture struct {
	orders    []*core.Order
	trades    []*core.Trade
	positions []*core.Position
}

func newHarness() (*Gateway, *capture) {
	bus := event.NewSyncBus(nil)
	cap := &capture{}
	bus.Register(event.TopicOrder, func(ev event.Event) {
		cap.orders = append(cap.orders, ev.Data.(*core.Order))
	})
	bus.Register(event.TopicTrade, func(ev event.Event) {
		cap.trades = append(cap.trades, ev.Data.(*core.Trade))
	})
	bus.Register(event.TopicPosition, func(ev event.Event) {
		cap.positions = append(cap.positions, ev.Data.(*core.Position))
	})
	return New(bus, nil), cap
}

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func limitReq(direction core.Direction, price float64, volume int64) *core.OrderRequest {
	return &core.OrderRequest{
		Symbol:    "MHI2507",
		Exchange:  core.ExchangeHKFE,
		Direction: direction,
		Type:      core.TypeLimit,
		Volume:    decimal.NewFromInt(volume),
		Price:     d(price),
	}
}

func bar(open, high, low, close float64) *core.Bar {
	return &core.Bar{
		Symbol:   "MHI2507",
		Exchange: core.ExchangeHKFE,
		Datetime: time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
		Interval: core.Interval1m,
		Open:     d(open),
		High:     d(high),
		Low:      d(low),
		Close:    d(close),
	}
}

func TestSendOrderAcknowledges(t *testing.T) {
	g, cap := newHarness()

	id := g.SendOrder(limitReq(core.DirectionLong, 3500, 2))
	require.Len(t, id, 8)

	require.Len(t, cap.orders, 1)
	assert.Equal(t, core.StatusSubmitting, cap.orders[0].Status)
	assert.Len(t, g.ActiveOrders(), 1)
}

func TestStopOrderRestsInactive(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeStopMarket,
		Volume: decimal.NewFromInt(1), TriggerPrice: d(3550),
	})

	require.Len(t, cap.orders, 1)
	assert.Equal(t, core.StatusPending, cap.orders[0].Status)
	assert.Empty(t, g.ActiveOrders())
	assert.Len(t, g.PendingStops(), 1)
}

func TestLimitFillsAtLimitPrice(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(limitReq(core.DirectionLong, 3500, 2))
	g.OnBar(bar(3510, 3520, 3490, 3505))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3500)))
	require.Len(t, cap.positions, 1)
	assert.Equal(t, core.DirectionLong, cap.positions[0].Direction)
	assert.True(t, cap.positions[0].Volume.Equal(decimal.NewFromInt(2)))
	assert.Empty(t, g.ActiveOrders())
}

func TestLimitGapThroughFillsAtOpen(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(limitReq(core.DirectionLong, 3500, 1))
	// opens already below the limit
	g.OnBar(bar(3480, 3495, 3470, 3490))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3480)))
}

func TestShortLimitFill(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(limitReq(core.DirectionShort, 3520, 1))
	g.OnBar(bar(3500, 3525, 3495, 3510))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3520)))
}

func TestMarketFillsAtOpen(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionShort, Type: core.TypeMarket,
		Volume: decimal.NewFromInt(3),
	})
	g.OnBar(bar(3500, 3510, 3490, 3505))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3500)))
}

func TestStopLimitActivatedAndFilledIntrabar(t *testing.T) {
	g, cap := newHarness()

	// trigger 3550, limit 3560
	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeStopLimit,
		Volume: decimal.NewFromInt(1), Price: d(3560), TriggerPrice: d(3550),
	})

	// high reaches the trigger and low is under the limit on the same bar:
	// fill is at the limit price, not at the open
	g.OnBar(bar(3540, 3560, 3530, 3555))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3560)))

	// the activation was visible as a PENDING order event with the bar stamped
	var pending *core.Order
	for _, o := range cap.orders {
		if o.Status == core.StatusPending && !o.TriggeredBar.IsZero() {
			pending = o
		}
	}
	require.NotNil(t, pending)
}

func TestStopLimitGapFillOnLaterBar(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeStopLimit,
		Volume: decimal.NewFromInt(1), Price: d(3560), TriggerPrice: d(3550),
	})

	// bar 1 activates but never trades under the limit
	b1 := bar(3540, 3555, 3540, 3552)
	g.OnBar(b1)
	require.Empty(t, cap.trades)

	// bar 2 opens below the limit: ordinary gap fill at the open
	b2 := bar(3530, 3545, 3525, 3540)
	b2.Datetime = b1.Datetime.Add(time.Minute)
	g.OnBar(b2)

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3530)))
}

func TestStopMarketFillUsesTriggerFloor(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeStopMarket,
		Volume: decimal.NewFromInt(1), TriggerPrice: d(3550),
	})

	// activates intrabar; fill price cannot be better than the trigger
	g.OnBar(bar(3540, 3560, 3530, 3555))

	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3550)))
}

func TestAbsoluteLimitRequiresRange(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionLong, Type: core.TypeAbsoluteLimit,
		Volume: decimal.NewFromInt(1), Price: d(3470),
	})

	g.OnBar(bar(3500, 3510, 3480, 3505))
	assert.Empty(t, cap.trades)

	b := bar(3490, 3500, 3465, 3470)
	g.OnBar(b)
	require.Len(t, cap.trades, 1)
	assert.True(t, cap.trades[0].Price.Equal(d(3470)))
}

func TestCancelEmitsAllCancelled(t *testing.T) {
	g, cap := newHarness()

	id := g.SendOrder(limitReq(core.DirectionLong, 3500, 1))
	g.CancelOrder(&core.CancelRequest{OrderID: id, Symbol: "MHI2507", Exchange: core.ExchangeHKFE})

	last := cap.orders[len(cap.orders)-1]
	assert.Equal(t, core.StatusAllCancelled, last.Status)
	assert.Empty(t, g.ActiveOrders())

	// cancelling again is a no-op
	n := len(cap.orders)
	g.CancelOrder(&core.CancelRequest{OrderID: id})
	assert.Len(t, cap.orders, n)
}

func TestCancelStopOrder(t *testing.T) {
	g, cap := newHarness()

	id := g.SendOrder(&core.OrderRequest{
		Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Direction: core.DirectionShort, Type: core.TypeStopMarket,
		Volume: decimal.NewFromInt(1), TriggerPrice: d(3400),
	})
	g.CancelOrder(&core.CancelRequest{OrderID: id})

	last := cap.orders[len(cap.orders)-1]
	assert.Equal(t, core.StatusAllCancelled, last.Status)
	assert.Empty(t, g.PendingStops())
}

func TestModifyUpdatesOrder(t *testing.T) {
	g, cap := newHarness()

	id := g.SendOrder(limitReq(core.DirectionLong, 3500, 2))
	g.ModifyOrder(&core.ModifyRequest{
		OrderID: id, Symbol: "MHI2507", Exchange: core.ExchangeHKFE,
		Qty: decimal.NewFromInt(3), Price: d(3490),
	})

	last := cap.orders[len(cap.orders)-1]
	assert.Equal(t, core.StatusModified, last.Status)
	assert.True(t, last.Volume.Equal(decimal.NewFromInt(3)))
	assert.True(t, last.Price.Equal(d(3490)))
}

func TestModifyUnknownOrderRejected(t *testing.T) {
	g, cap := newHarness()

	g.ModifyOrder(&core.ModifyRequest{OrderID: "nope", Symbol: "MHI2507", Exchange: core.ExchangeHKFE})

	require.Len(t, cap.orders, 1)
	rej := cap.orders[0]
	assert.Equal(t, core.StatusRejected, rej.Status)
	assert.Equal(t, core.TypeMarket, rej.Type)
	assert.Equal(t, core.DirectionLong, rej.Direction)
	assert.Contains(t, rej.Reference, "not found")
}

func TestModifyQtyBelowTradedRejected(t *testing.T) {
	g, cap := newHarness()

	id := g.SendOrder(limitReq(core.DirectionLong, 3500, 2))
	// force a partial fill state
	g.active.get(id).Traded = decimal.NewFromInt(2)

	g.ModifyOrder(&core.ModifyRequest{OrderID: id, Qty: decimal.NewFromInt(1)})

	last := cap.orders[len(cap.orders)-1]
	assert.Equal(t, core.StatusRejected, last.Status)
	assert.Contains(t, last.Reference, "qty below traded")
}

func TestMatchingFollowsInsertionOrder(t *testing.T) {
	g, cap := newHarness()

	g.SendOrder(limitReq(core.DirectionLong, 3500, 1))
	g.SendOrder(limitReq(core.DirectionLong, 3500, 2))
	g.OnBar(bar(3510, 3520, 3490, 3505))

	require.Len(t, cap.trades, 2)
	assert.True(t, cap.trades[0].Volume.Equal(decimal.NewFromInt(1)))
	assert.True(t, cap.trades[1].Volume.Equal(decimal.NewFromInt(2)))
}
