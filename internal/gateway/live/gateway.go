package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
	"cta_runtime/pkg/retry"
)

// Gateway bridges a BrokerClient onto the event bus. Stop order types are
// not supported by the venue, so the gateway holds them locally and
// converts them to plain market/limit orders when a tick crosses the
// trigger.
type Gateway struct {
	name   string
	bus    event.Bus
	broker BrokerClient
	logger core.ILogger

	// mu guards the maps below; broker callbacks arrive on the vendor
	// thread while requests arrive from the bus worker.
	mu sync.Mutex

	orders       map[string]*core.Order // local orderid -> order
	brokerToLoc  map[string]string      // broker orderid -> local orderid
	pendingStops map[string]*core.Order // stop orders awaiting trigger

	unlocked bool
}

// New creates a live gateway. Call Connect before sending orders.
func New(name string, bus event.Bus, broker BrokerClient, logger core.ILogger) *Gateway {
	g := &Gateway{
		name:         name,
		bus:          bus,
		broker:       broker,
		logger:       logger,
		orders:       make(map[string]*core.Order),
		brokerToLoc:  make(map[string]string),
		pendingStops: make(map[string]*core.Order),
	}
	broker.SetCallbacks(Callbacks{
		OnTick:  g.handleTick,
		OnOrder: g.handleOrderUpdate,
		OnDeal:  g.handleDeal,
	})
	return g
}

// Name implements core.Gateway.
func (g *Gateway) Name() string { return g.name }

// Connect dials the venue with backoff and unlocks trading.
func (g *Gateway) Connect(ctx context.Context) error {
	err := retry.DoNotify(ctx, retry.DialPolicy, nil, func(attempt int, err error, backoff time.Duration) {
		if g.logger != nil {
			g.logger.Warn("broker connect failed, retrying",
				"attempt", attempt, "backoff", backoff.String(), "error", err.Error())
		}
	}, func() error {
		return g.broker.Connect(ctx)
	})
	if err != nil {
		return err
	}
	if err := g.broker.Unlock(); err != nil {
		return err
	}
	g.mu.Lock()
	g.unlocked = true
	g.mu.Unlock()
	return nil
}

// Close shuts the broker session.
func (g *Gateway) Close() error { return g.broker.Close() }

// Subscribe starts market data for the symbols.
func (g *Gateway) Subscribe(symbols []string) error {
	return g.broker.Subscribe(symbols)
}

func newLocalID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// SendOrder assigns a local id and either parks a stop order or submits
// straight to the venue. A failed unlock or submit surfaces as a REJECTED
// order event, never as an error to the caller.
func (g *Gateway) SendOrder(req *core.OrderRequest) string {
	order := req.CreateOrder(newLocalID(), g.name)

	g.mu.Lock()
	g.orders[order.OrderID] = order
	g.mu.Unlock()

	if req.Type.IsStop() {
		order.Status = core.StatusPending
		g.mu.Lock()
		g.pendingStops[order.OrderID] = order
		g.mu.Unlock()
		g.emitOrder(order)
		return order.OrderID
	}

	g.emitOrder(order)
	g.submit(order)
	return order.OrderID
}

// submit pushes an order to the venue, rejecting it locally on failure.
func (g *Gateway) submit(order *core.Order) {
	g.mu.Lock()
	unlocked := g.unlocked
	g.mu.Unlock()
	if !unlocked {
		if err := g.broker.Unlock(); err != nil {
			g.reject(order, "unlock failed: "+err.Error())
			return
		}
		g.mu.Lock()
		g.unlocked = true
		g.mu.Unlock()
	}

	req := &core.OrderRequest{
		Symbol:    order.Symbol,
		Exchange:  order.Exchange,
		Direction: order.Direction,
		Type:      order.Type,
		Volume:    order.Volume,
		Price:     order.Price,
		Offset:    order.Offset,
		Reference: order.Reference,
	}
	brokerID, err := g.broker.PlaceOrder(req)
	if err != nil {
		g.reject(order, "submit failed: "+err.Error())
		return
	}

	g.mu.Lock()
	order.BrokerOrderID = brokerID
	g.brokerToLoc[brokerID] = order.OrderID
	g.mu.Unlock()
}

func (g *Gateway) reject(order *core.Order, reason string) {
	g.mu.Lock()
	order.Status = core.StatusRejected
	order.Reference = reason
	order.Datetime = time.Now()
	g.mu.Unlock()
	if g.logger != nil {
		g.logger.Error("order rejected", "orderid", order.OrderID, "reason", reason)
	}
	g.emitOrder(order)
}

// CancelOrder cancels a resting stop locally or forwards to the venue.
func (g *Gateway) CancelOrder(req *core.CancelRequest) {
	g.mu.Lock()
	if order, ok := g.pendingStops[req.OrderID]; ok {
		delete(g.pendingStops, req.OrderID)
		order.Status = core.StatusAllCancelled
		order.Datetime = time.Now()
		g.mu.Unlock()
		g.emitOrder(order)
		return
	}
	order := g.orders[req.OrderID]
	g.mu.Unlock()

	if order == nil || order.BrokerOrderID == "" {
		return
	}
	if err := g.broker.CancelOrder(order.BrokerOrderID); err != nil && g.logger != nil {
		g.logger.Error("cancel failed", "orderid", req.OrderID, "error", err.Error())
	}
}

// ModifyOrder amends a resting stop locally or forwards to the venue.
func (g *Gateway) ModifyOrder(req *core.ModifyRequest) {
	g.mu.Lock()
	if order, ok := g.pendingStops[req.OrderID]; ok {
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
		order.Datetime = time.Now()
		g.mu.Unlock()
		g.emitOrder(order)
		return
	}
	order := g.orders[req.OrderID]
	g.mu.Unlock()

	if order == nil || order.BrokerOrderID == "" {
		return
	}
	if err := g.broker.ModifyOrder(order.BrokerOrderID, req.Qty, req.Price); err != nil && g.logger != nil {
		g.logger.Error("modify failed", "orderid", req.OrderID, "error", err.Error())
	}
}

// handleTick forwards market data and fires any stop whose trigger the
// last price crossed.
func (g *Gateway) handleTick(tick *core.Tick) {
	tick.GatewayName = g.name
	g.bus.Put(event.New(event.TopicTick, tick))
	g.bus.Put(event.New(event.TickTopic(tick.VtSymbol()), tick))

	var fired []*core.Order
	g.mu.Lock()
	for id, order := range g.pendingStops {
		if order.VtSymbol() != tick.VtSymbol() {
			continue
		}
		triggered := (order.Direction == core.DirectionLong && tick.LastPrice.GreaterThanOrEqual(order.TriggerPrice)) ||
			(order.Direction == core.DirectionShort && tick.LastPrice.LessThanOrEqual(order.TriggerPrice))
		if triggered {
			delete(g.pendingStops, id)
			fired = append(fired, order)
		}
	}
	g.mu.Unlock()

	for _, order := range fired {
		g.triggerStop(order)
	}
}

// triggerStop converts a fired stop into the venue-supported order type
// and submits it.
func (g *Gateway) triggerStop(order *core.Order) {
	g.mu.Lock()
	if order.Type == core.TypeStopMarket {
		order.Type = core.TypeMarket
	} else {
		order.Type = core.TypeLimit
	}
	order.Status = core.StatusSubmitting
	order.Datetime = time.Now()
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Info("stop order triggered", "orderid", order.OrderID, "symbol", order.Symbol)
	}
	g.emitOrder(order)
	g.submit(order)
}

// handleOrderUpdate applies a venue push to the local order.
func (g *Gateway) handleOrderUpdate(update OrderUpdate) {
	g.mu.Lock()
	localID, ok := g.brokerToLoc[update.BrokerOrderID]
	if !ok {
		g.mu.Unlock()
		return
	}
	order := g.orders[localID]
	order.Status = MapVenueStatus(update.VenueStatus)
	if !update.Traded.IsZero() {
		order.Traded = update.Traded
	}
	if !update.AvgFillPrice.IsZero() {
		order.AvgFillPrice = update.AvgFillPrice
	}
	order.Datetime = time.Now()
	g.mu.Unlock()

	g.emitOrder(order)
}

// handleDeal synthesizes trade and position events from a venue fill.
func (g *Gateway) handleDeal(deal DealUpdate) {
	g.mu.Lock()
	localID, ok := g.brokerToLoc[deal.BrokerOrderID]
	if !ok {
		g.mu.Unlock()
		return
	}
	order := g.orders[localID]
	trade := &core.Trade{
		GatewayName: g.name,
		Symbol:      order.Symbol,
		Exchange:    order.Exchange,
		OrderID:     order.OrderID,
		TradeID:     deal.DealID,
		Direction:   order.Direction,
		Offset:      order.Offset,
		Price:       deal.Price,
		Volume:      deal.Volume,
		Datetime:    time.Now(),
		Reference:   order.Reference,
	}
	position := &core.Position{
		GatewayName: g.name,
		Symbol:      order.Symbol,
		Exchange:    order.Exchange,
		Direction:   order.Direction,
		Volume:      deal.Volume,
		Price:       deal.Price,
	}
	g.mu.Unlock()

	g.bus.Put(event.New(event.TopicTrade, trade))
	g.bus.Put(event.New(event.TopicPosition, position))
}

func (g *Gateway) emitOrder(order *core.Order) {
	g.mu.Lock()
	clone := order.Clone()
	g.mu.Unlock()
	g.bus.Put(event.New(event.TopicOrder, clone))
}

// PendingStops returns the stop orders still awaiting their trigger.
func (g *Gateway) PendingStops() []*core.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*core.Order, 0, len(g.pendingStops))
	for _, o := range g.pendingStops {
		out = append(out, o.Clone())
	}
	return out
}
