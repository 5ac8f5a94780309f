package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
	"cta_runtime/internal/oms"
)

type stubPolicy struct {
	name string
	plan []TargetOrder
}

func (p *stubPolicy) Name() string                 { return p.name }
func (p *stubPolicy) OnBar(*core.Bar) bool         { return true }
func (p *stubPolicy) OnTick(*core.Tick) bool       { return false }
func (p *stubPolicy) OnOrder(*core.Order) bool     { return false }
func (p *stubPolicy) OnTrade(*core.Trade) bool     { return false }
func (p *stubPolicy) OnPosition(*core.Position) bool { return false }
func (p *stubPolicy) Plan() []TargetOrder          { return p.plan }

type requestRecorder struct {
	places  []*core.OrderRequest
	cancels []*core.CancelRequest
	mods    []*core.ModifyRequest
}

func recordRequests(bus event.Bus) *requestRecorder {
	rec := &requestRecorder{}
	bus.Register(event.TopicOrderReq, func(ev event.Event) {
		rec.places = append(rec.places, ev.Data.(*core.OrderRequest))
	})
	bus.Register(event.TopicCancelReq, func(ev event.Event) {
		rec.cancels = append(rec.cancels, ev.Data.(*core.CancelRequest))
	})
	bus.Register(event.TopicModifyReq, func(ev event.Event) {
		rec.mods = append(rec.mods, ev.Data.(*core.ModifyRequest))
	})
	return rec
}

func (r *requestRecorder) total() int {
	return len(r.places) + len(r.cancels) + len(r.mods)
}

func limitTarget(price int64) TargetOrder {
	return TargetOrder{
		Reference: "entry",
		Symbol:    "MHI2507",
		Exchange:  core.ExchangeHKFE,
		Direction: core.DirectionLong,
		Type:      core.TypeLimit,
		Offset:    core.OffsetOpen,
		Volume:    decimal.NewFromInt(2),
		Price:     decimal.NewFromInt(price),
	}
}

func liveOrder(ref string, price int64) *core.Order {
	return &core.Order{
		GatewayName: "SIM",
		Symbol:      "MHI2507",
		Exchange:    core.ExchangeHKFE,
		OrderID:     "1",
		Type:        core.TypeLimit,
		Direction:   core.DirectionLong,
		Price:       decimal.NewFromInt(price),
		Volume:      decimal.NewFromInt(2),
		Status:      core.StatusNotTraded,
		Reference:   ref,
		Datetime:    time.Now(),
	}
}

func bar() *core.Bar {
	return &core.Bar{
		Symbol:   "MHI2507",
		Exchange: core.ExchangeHKFE,
		Interval: core.Interval1m,
		Datetime: time.Now(),
	}
}

func TestRunnerPlacesMissingTarget(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub", plan: []TargetOrder{limitTarget(3500)}}
	NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	bus.Put(event.New(event.TopicBar, bar()))

	require.Len(t, rec.places, 1)
	req := rec.places[0]
	assert.Equal(t, "stub:entry", req.Reference)
	assert.Equal(t, core.TypeLimit, req.Type)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(3500)))
	assert.Empty(t, rec.cancels)
	assert.Empty(t, rec.mods)
}

func TestRunnerSteadyStateIsFixedPoint(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub", plan: []TargetOrder{limitTarget(3500)}}
	NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	// the gateway acknowledged the target; the live order matches the plan
	bus.Put(event.New(event.TopicOrder, liveOrder("stub:entry", 3500)))
	bus.Put(event.New(event.TopicBar, bar()))

	assert.Zero(t, rec.total())
}

func TestRunnerModifiesChangedTarget(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub", plan: []TargetOrder{limitTarget(3490)}}
	NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	bus.Put(event.New(event.TopicOrder, liveOrder("stub:entry", 3500)))
	bus.Put(event.New(event.TopicBar, bar()))

	require.Len(t, rec.mods, 1)
	mod := rec.mods[0]
	assert.Equal(t, "1", mod.OrderID)
	assert.True(t, mod.Price.Equal(decimal.NewFromInt(3490)))
	assert.True(t, mod.Qty.Equal(decimal.NewFromInt(2)))
	assert.Empty(t, rec.places)
}

func TestRunnerCancelsAbandonedOrder(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub"}
	NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	bus.Put(event.New(event.TopicOrder, liveOrder("stub:entry", 3500)))
	bus.Put(event.New(event.TopicBar, bar()))

	require.Len(t, rec.cancels, 1)
	assert.Equal(t, "1", rec.cancels[0].OrderID)
	assert.Empty(t, rec.places)
}

func TestRunnerIgnoresForeignOrders(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub"}
	NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	// live order owned by another strategy stays untouched
	bus.Put(event.New(event.TopicOrder, liveOrder("other:entry", 3500)))
	bus.Put(event.New(event.TopicBar, bar()))

	assert.Zero(t, rec.total())
}

func TestRunnerIgnoresOtherPoliciesReconcile(t *testing.T) {
	bus := event.NewSyncBus(nil)
	store := oms.New(bus, oms.PolicyOverwrite, nil)
	policy := &stubPolicy{name: "stub", plan: []TargetOrder{limitTarget(3500)}}
	r := NewRunner(policy, bus, store, nil)
	rec := recordRequests(bus)

	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()

	bus.Put(event.New(event.TopicReconcile, "someone-else"))
	assert.Zero(t, rec.total())

	bus.Put(event.New(event.TopicReconcile, "stub"))
	assert.Len(t, rec.places, 1)
}
