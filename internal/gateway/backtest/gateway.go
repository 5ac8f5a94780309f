// Package backtest implements the matching gateway used by the backtest
// runtime. It keeps an active and an inactive (stop) order book, matches
// orders against bars, and publishes the same order, trade and position
// events a live venue gateway would.
package backtest

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// GatewayName tags events originating from the matcher.
const GatewayName = "BACKTEST"

// book holds orders in insertion order so matching within a bar is
// deterministic.
type book struct {
	orders map[string]*core.Order
	ids    []string
}

func newBook() *book {
	return &book{orders: make(map[string]*core.Order)}
}

func (b *book) add(o *core.Order) {
	b.orders[o.OrderID] = o
	b.ids = append(b.ids, o.OrderID)
}

func (b *book) get(id string) *core.Order {
	return b.orders[id]
}

func (b *book) remove(id string) *core.Order {
	o, ok := b.orders[id]
	if !ok {
		return nil
	}
	delete(b.orders, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
	return o
}

// list returns the resting orders in insertion order.
func (b *book) list() []*core.Order {
	out := make([]*core.Order, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, b.orders[id])
	}
	return out
}

// Gateway is the backtest matching engine. It is driven synchronously by
// the backtest driver; no locking is needed.
type Gateway struct {
	bus    event.Bus
	logger core.ILogger

	// active holds limit/market orders awaiting a fill; inactive holds
	// stop orders awaiting their trigger.
	active   *book
	inactive *book
}

// New creates a matching gateway publishing on bus.
func New(bus event.Bus, logger core.ILogger) *Gateway {
	return &Gateway{
		bus:      bus,
		logger:   logger,
		active:   newBook(),
		inactive: newBook(),
	}
}

// Name implements core.Gateway.
func (g *Gateway) Name() string { return GatewayName }

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SendOrder books the order and emits an immediate acknowledgement.
// Stop types rest in the inactive book with status PENDING; everything
// else goes to the active book with status SUBMITTING.
func (g *Gateway) SendOrder(req *core.OrderRequest) string {
	order := req.CreateOrder(newID(), GatewayName)
	if req.Type.IsStop() {
		order.Status = core.StatusPending
		g.inactive.add(order)
	} else {
		g.active.add(order)
	}
	g.emitOrder(order)
	return order.OrderID
}

// CancelOrder pops the order from whichever book holds it and emits the
// cancelled state unless the order already finished.
func (g *Gateway) CancelOrder(req *core.CancelRequest) {
	order := g.active.remove(req.OrderID)
	if order == nil {
		order = g.inactive.remove(req.OrderID)
	}
	if order == nil {
		return
	}
	if order.Status != core.StatusAllTraded && order.Status != core.StatusAllCancelled {
		order.Status = core.StatusAllCancelled
		g.emitOrder(order)
	}
}

// ModifyOrder amends price, volume and trigger price in place. A modify
// that cannot be honored is answered with a synthetic REJECTED order event
// carrying the reason in its reference.
func (g *Gateway) ModifyOrder(req *core.ModifyRequest) {
	order := g.active.get(req.OrderID)
	if order == nil {
		order = g.inactive.get(req.OrderID)
	}
	if order == nil {
		g.rejectModify(req, "order not found")
		return
	}
	if !order.Status.IsActive() {
		g.rejectModify(req, "order in terminal status "+string(order.Status))
		return
	}
	if !req.Qty.IsZero() && req.Qty.LessThan(order.Traded) {
		g.rejectModify(req, "qty below traded volume")
		return
	}

	if !req.Qty.IsZero() {
		order.Volume = req.Qty
	}
	if !req.Price.IsZero() {
		order.Price = req.Price
	}
	if !req.TriggerPrice.IsZero() {
		order.TriggerPrice = req.TriggerPrice
	}
	order.Status = core.StatusModified
	g.emitOrder(order)
}

func (g *Gateway) rejectModify(req *core.ModifyRequest, reason string) {
	rejected := &core.Order{
		GatewayName: GatewayName,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		OrderID:     req.OrderID,
		Type:        core.TypeMarket,
		Direction:   core.DirectionLong,
		Status:      core.StatusRejected,
		Reference:   "modify rejected: " + reason,
	}
	if g.logger != nil {
		g.logger.Warn("modify rejected", "orderid", req.OrderID, "reason", reason)
	}
	g.emitOrder(rejected)
}

// OnBar activates stops and matches the active book against one bar. The
// driver only forwards bars of the configured matching interval.
func (g *Gateway) OnBar(bar *core.Bar) {
	g.activateStops(bar)
	g.matchActive(bar)
}

// activateStops promotes stop orders whose trigger the bar's range reached.
func (g *Gateway) activateStops(bar *core.Bar) {
	for _, order := range g.inactive.list() {
		if order.VtSymbol() != bar.VtSymbol() {
			continue
		}
		triggered := (order.Direction == core.DirectionLong && bar.High.GreaterThanOrEqual(order.TriggerPrice)) ||
			(order.Direction == core.DirectionShort && bar.Low.LessThanOrEqual(order.TriggerPrice))
		if !triggered {
			continue
		}
		g.inactive.remove(order.OrderID)
		order.Status = core.StatusPending
		order.TriggeredBar = bar.Datetime
		g.active.add(order)
		g.emitOrder(order)
	}
}

func (g *Gateway) matchActive(bar *core.Bar) {
	for _, order := range g.active.list() {
		if order.VtSymbol() != bar.VtSymbol() {
			continue
		}
		fill, ok := g.fillPrice(order, bar)
		if !ok {
			continue
		}
		g.active.remove(order.OrderID)
		g.fill(order, fill, bar)
	}
}

// fillPrice decides whether the order trades on this bar and at what price.
func (g *Gateway) fillPrice(order *core.Order, bar *core.Bar) (decimal.Decimal, bool) {
	long := order.Direction == core.DirectionLong

	switch order.Type {
	case core.TypeMarket, core.TypeStopMarket:
		fill := bar.Open
		if order.TriggerPrice.IsPositive() {
			if long {
				fill = decimal.Max(order.TriggerPrice, bar.Open)
			} else {
				fill = decimal.Min(order.TriggerPrice, bar.Open)
			}
		}
		return fill, true

	case core.TypeAbsoluteLimit:
		if bar.Low.LessThanOrEqual(order.Price) && order.Price.LessThanOrEqual(bar.High) {
			return order.Price, true
		}
		return decimal.Zero, false

	case core.TypeLimit, core.TypeStopLimit:
		crossed := (long && bar.Low.LessThanOrEqual(order.Price)) ||
			(!long && bar.High.GreaterThanOrEqual(order.Price))
		if !crossed {
			return decimal.Zero, false
		}
		// a stop-limit activated on this very bar can only trade the
		// intrabar range, never the opening gap
		if order.Type == core.TypeStopLimit && order.TriggeredBar.Equal(bar.Datetime) {
			return order.Price, true
		}
		gapped := (long && bar.Open.LessThanOrEqual(order.Price)) ||
			(!long && bar.Open.GreaterThanOrEqual(order.Price))
		if gapped {
			return bar.Open, true
		}
		return order.Price, true
	}

	return decimal.Zero, false
}

// fill marks the order done and emits the order, trade and position events.
func (g *Gateway) fill(order *core.Order, price decimal.Decimal, bar *core.Bar) {
	order.Status = core.StatusAllTraded
	order.Traded = order.Volume
	order.AvgFillPrice = price
	order.Datetime = bar.Datetime
	g.emitOrder(order)

	trade := &core.Trade{
		GatewayName:  GatewayName,
		Symbol:       order.Symbol,
		Exchange:     order.Exchange,
		OrderID:      order.OrderID,
		TradeID:      newID(),
		Direction:    order.Direction,
		Offset:       order.Offset,
		Price:        price,
		Volume:       order.Volume,
		Traded:       order.Volume,
		AvgFillPrice: price,
		Status:       core.StatusAllTraded,
		Datetime:     bar.Datetime,
		Reference:    order.Reference,
	}
	g.bus.Put(event.New(event.TopicTrade, trade))

	position := &core.Position{
		GatewayName: GatewayName,
		Symbol:      order.Symbol,
		Exchange:    order.Exchange,
		Direction:   order.Direction,
		Volume:      order.Volume,
		Price:       price,
	}
	g.bus.Put(event.New(event.TopicPosition, position))
}

func (g *Gateway) emitOrder(order *core.Order) {
	g.bus.Put(event.New(event.TopicOrder, order.Clone()))
}

// ActiveOrders exposes the resting active book, in insertion order.
func (g *Gateway) ActiveOrders() []*core.Order { return g.active.list() }

// PendingStops exposes the resting inactive book, in insertion order.
func (g *Gateway) PendingStops() []*core.Order { return g.inactive.list() }
