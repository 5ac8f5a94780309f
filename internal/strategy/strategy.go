// Package strategy runs trading policies through a reconcile loop.
// Policies never talk to a gateway. They digest market and account events,
// report whether their view changed, and describe the orders they want as a
// plan. The runner diffs the plan against the live orders in the OMS and
// emits place, modify and cancel requests to close the gap.
package strategy

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// TargetOrder is one desired working order, keyed by a logical reference
// such as "entry" or "stop_order". The runner namespaces the reference with
// the policy name before it reaches the gateway.
type TargetOrder struct {
	Reference    string
	Symbol       string
	Exchange     core.Exchange
	Direction    core.Direction
	Type         core.OrderType
	Offset       core.Offset
	Volume       decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
}

// Policy is the strategy surface. Each On* handler returns true when the
// event changed the policy's desired state and a reconcile pass is needed.
// Plan returns the full set of orders the policy currently wants.
type Policy interface {
	Name() string
	OnBar(bar *core.Bar) bool
	OnTick(tick *core.Tick) bool
	OnOrder(order *core.Order) bool
	OnTrade(trade *core.Trade) bool
	OnPosition(position *core.Position) bool
	Plan() []TargetOrder
}

// Runner owns the dirty flag and the reconcile latch for one policy.
type Runner struct {
	policy Policy
	bus    event.Bus
	oms    core.OMSReader
	logger core.ILogger

	mu          sync.Mutex
	dirty       bool
	pending     bool
	reconciling bool
}

// NewRunner wires a policy onto the bus. The OMS must be registered on the
// same bus before the runner so its view is current when handlers fire.
func NewRunner(policy Policy, bus event.Bus, oms core.OMSReader, logger core.ILogger) *Runner {
	r := &Runner{policy: policy, bus: bus, oms: oms, logger: logger}
	bus.Register(event.TopicBar, r.handleBar)
	bus.Register(event.TopicTick, r.handleTick)
	bus.Register(event.TopicOrder, r.handleOrder)
	bus.Register(event.TopicTrade, r.handleTrade)
	bus.Register(event.TopicPosition, r.handlePosition)
	bus.Register(event.TopicReconcile, r.handleReconcile)
	return r
}

func (r *Runner) handleBar(ev event.Event) {
	if bar, ok := ev.Data.(*core.Bar); ok && r.policy.OnBar(bar) {
		r.markDirty()
	}
}

func (r *Runner) handleTick(ev event.Event) {
	if tick, ok := ev.Data.(*core.Tick); ok && r.policy.OnTick(tick) {
		r.markDirty()
	}
}

func (r *Runner) handleOrder(ev event.Event) {
	if order, ok := ev.Data.(*core.Order); ok && r.policy.OnOrder(order) {
		r.markDirty()
	}
}

func (r *Runner) handleTrade(ev event.Event) {
	if trade, ok := ev.Data.(*core.Trade); ok && r.policy.OnTrade(trade) {
		r.markDirty()
	}
}

func (r *Runner) handlePosition(ev event.Event) {
	if position, ok := ev.Data.(*core.Position); ok && r.policy.OnPosition(position) {
		r.markDirty()
	}
}

// markDirty requests a reconcile pass. At most one reconcile event is
// pending at a time; a pass already running picks the flag up on its next
// loop iteration instead.
func (r *Runner) markDirty() {
	r.mu.Lock()
	r.dirty = true
	if r.pending || r.reconciling {
		r.mu.Unlock()
		return
	}
	r.pending = true
	r.mu.Unlock()
	r.bus.Put(event.New(event.TopicReconcile, r.policy.Name()))
}

// handleReconcile loops while the policy stays dirty. The latch keeps the
// pass single-threaded; dirty signals raised during execution extend the
// loop rather than re-entering it.
func (r *Runner) handleReconcile(ev event.Event) {
	if name, ok := ev.Data.(string); !ok || name != r.policy.Name() {
		return
	}

	r.mu.Lock()
	r.pending = false
	if r.reconciling {
		r.mu.Unlock()
		return
	}
	r.reconciling = true
	for r.dirty {
		r.dirty = false
		r.mu.Unlock()
		r.execute()
		r.mu.Lock()
	}
	r.reconciling = false
	r.mu.Unlock()
}

// execute diffs the plan against the policy's live orders and emits the
// requests that close the gap.
func (r *Runner) execute() {
	prefix := r.policy.Name() + ":"
	targets := r.policy.Plan()

	want := make(map[string]TargetOrder, len(targets))
	for _, t := range targets {
		want[prefix+t.Reference] = t
	}

	live := make(map[string]*core.Order)
	for _, order := range r.oms.GetAllActiveOrders() {
		if strings.HasPrefix(order.Reference, prefix) {
			live[order.Reference] = order
		}
	}

	for ref, order := range live {
		if _, ok := want[ref]; ok {
			continue
		}
		if r.logger != nil {
			r.logger.Info("reconcile cancel", "strategy", r.policy.Name(), "reference", ref, "orderid", order.OrderID)
		}
		r.bus.Put(event.New(event.TopicCancelReq, order.CancelRequest()))
	}

	for _, t := range targets {
		ref := prefix + t.Reference
		order, ok := live[ref]
		if !ok {
			if r.logger != nil {
				r.logger.Info("reconcile place", "strategy", r.policy.Name(), "reference", ref, "symbol", t.Symbol)
			}
			r.bus.Put(event.New(event.TopicOrderReq, &core.OrderRequest{
				Symbol:       t.Symbol,
				Exchange:     t.Exchange,
				Direction:    t.Direction,
				Type:         t.Type,
				Offset:       t.Offset,
				Volume:       t.Volume,
				Price:        t.Price,
				TriggerPrice: t.TriggerPrice,
				Reference:    ref,
			}))
			continue
		}
		if order.Price.Equal(t.Price) && order.Volume.Equal(t.Volume) && order.TriggerPrice.Equal(t.TriggerPrice) {
			continue
		}
		if r.logger != nil {
			r.logger.Info("reconcile modify", "strategy", r.policy.Name(), "reference", ref, "orderid", order.OrderID)
		}
		r.bus.Put(event.New(event.TopicModifyReq, &core.ModifyRequest{
			OrderID:      order.OrderID,
			Symbol:       order.Symbol,
			Exchange:     order.Exchange,
			Qty:          t.Volume,
			Price:        t.Price,
			TriggerPrice: t.TriggerPrice,
		}))
	}
}
