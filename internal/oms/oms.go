// Package oms maintains the current snapshot of orders, trades, positions,
// accounts, contracts and quotes by consuming bus events. All mutation
// happens on the bus worker; readers on other goroutines take the read
// lock and receive coherent per-event snapshots.
package oms

import (
	"sort"
	"sync"
	"time"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// PositionPolicy selects how incoming position events update the book.
type PositionPolicy int

const (
	// PolicyOverwrite replaces the stored position with the event as-is,
	// for venues that push authoritative holdings snapshots.
	PolicyOverwrite PositionPolicy = iota

	// PolicyNetting treats each event as a signed delta. Zero net volume
	// removes the position; a sign flip flips the direction. Both shipped
	// gateways publish per-fill deltas, so their runtimes use this policy.
	PolicyNetting
)

// OMS is the order management snapshot store.
type OMS struct {
	mu sync.RWMutex

	ticks     map[string]*core.Tick
	orders    map[string]*core.Order
	trades    map[string]*core.Trade
	positions map[string]*core.Position
	accounts  map[string]*core.Account
	contracts map[string]*core.Contract
	quotes    map[string]*core.Quote

	activeOrders map[string]*core.Order
	activeQuotes map[string]*core.Quote

	policy PositionPolicy
	logger core.ILogger
}

// New creates an OMS and registers its handlers on the bus.
func New(bus event.Bus, policy PositionPolicy, logger core.ILogger) *OMS {
	o := &OMS{
		ticks:        make(map[string]*core.Tick),
		orders:       make(map[string]*core.Order),
		trades:       make(map[string]*core.Trade),
		positions:    make(map[string]*core.Position),
		accounts:     make(map[string]*core.Account),
		contracts:    make(map[string]*core.Contract),
		quotes:       make(map[string]*core.Quote),
		activeOrders: make(map[string]*core.Order),
		activeQuotes: make(map[string]*core.Quote),
		policy:       policy,
		logger:       logger,
	}
	if bus != nil {
		bus.Register(event.TopicTick, o.processTick)
		bus.Register(event.TopicOrder, o.processOrder)
		bus.Register(event.TopicTrade, o.processTrade)
		bus.Register(event.TopicPosition, o.processPosition)
		bus.Register(event.TopicAccount, o.processAccount)
		bus.Register(event.TopicContract, o.processContract)
		bus.Register(event.TopicQuote, o.processQuote)
	}
	return o
}

func (o *OMS) processTick(ev event.Event) {
	tick, ok := ev.Data.(*core.Tick)
	if !ok {
		return
	}
	o.mu.Lock()
	o.ticks[tick.VtSymbol()] = tick
	o.mu.Unlock()
}

func (o *OMS) processOrder(ev event.Event) {
	order, ok := ev.Data.(*core.Order)
	if !ok {
		return
	}
	o.mu.Lock()
	o.orders[order.VtOrderID()] = order
	if order.IsActive() {
		o.activeOrders[order.VtOrderID()] = order
	} else {
		delete(o.activeOrders, order.VtOrderID())
	}
	o.mu.Unlock()
}

func (o *OMS) processTrade(ev event.Event) {
	trade, ok := ev.Data.(*core.Trade)
	if !ok {
		return
	}
	o.mu.Lock()
	o.trades[trade.VtTradeID()] = trade
	o.mu.Unlock()
}

func (o *OMS) processPosition(ev event.Event) {
	position, ok := ev.Data.(*core.Position)
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	key := position.VtSymbol()
	if o.policy == PolicyOverwrite {
		o.positions[key] = position
		return
	}

	existing := o.positions[key]
	if existing == nil {
		if position.Volume.IsZero() {
			return
		}
		o.positions[key] = position.Clone()
		return
	}

	net := existing.SignedVolume().Add(position.SignedVolume())
	if net.IsZero() {
		delete(o.positions, key)
		return
	}

	updated := existing.Clone()
	updated.Direction = core.DirectionLong
	if net.IsNegative() {
		updated.Direction = core.DirectionShort
	}
	updated.Volume = net.Abs()
	if !position.Price.IsZero() {
		updated.Price = position.Price
	}
	o.positions[key] = updated
}

func (o *OMS) processAccount(ev event.Event) {
	account, ok := ev.Data.(*core.Account)
	if !ok {
		return
	}
	o.mu.Lock()
	o.accounts[account.VtAccountID()] = account
	o.mu.Unlock()
}

func (o *OMS) processContract(ev event.Event) {
	contract, ok := ev.Data.(*core.Contract)
	if !ok {
		return
	}
	o.mu.Lock()
	o.contracts[contract.VtSymbol()] = contract
	o.mu.Unlock()
}

func (o *OMS) processQuote(ev event.Event) {
	quote, ok := ev.Data.(*core.Quote)
	if !ok {
		return
	}
	o.mu.Lock()
	o.quotes[quote.VtQuoteID()] = quote
	if quote.IsActive() {
		o.activeQuotes[quote.VtQuoteID()] = quote
	} else {
		delete(o.activeQuotes, quote.VtQuoteID())
	}
	o.mu.Unlock()
}

// GetTick returns the latest tick for a vt_symbol, or nil.
func (o *OMS) GetTick(vtSymbol string) *core.Tick {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ticks[vtSymbol]
}

// GetOrder returns the latest state of an order by vt_orderid, or nil.
func (o *OMS) GetOrder(vtOrderID string) *core.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.orders[vtOrderID]
}

// GetTrade returns a trade by vt_tradeid, or nil.
func (o *OMS) GetTrade(vtTradeID string) *core.Trade {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.trades[vtTradeID]
}

// GetPosition returns the position for a vt_symbol, or nil.
func (o *OMS) GetPosition(vtSymbol string) *core.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.positions[vtSymbol]
}

// GetAccount returns an account by vt_accountid, or nil.
func (o *OMS) GetAccount(vtAccountID string) *core.Account {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.accounts[vtAccountID]
}

// GetContract returns a contract by vt_symbol, or nil.
func (o *OMS) GetContract(vtSymbol string) *core.Contract {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.contracts[vtSymbol]
}

// GetQuote returns a quote by vt_quoteid, or nil.
func (o *OMS) GetQuote(vtQuoteID string) *core.Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quotes[vtQuoteID]
}

// GetAllOrders returns every order seen.
func (o *OMS) GetAllOrders() []*core.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Order, 0, len(o.orders))
	for _, v := range o.orders {
		out = append(out, v)
	}
	return out
}

// GetAllTrades returns every trade seen.
func (o *OMS) GetAllTrades() []*core.Trade {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Trade, 0, len(o.trades))
	for _, v := range o.trades {
		out = append(out, v)
	}
	return out
}

// GetAllPositions returns every open position.
func (o *OMS) GetAllPositions() []*core.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Position, 0, len(o.positions))
	for _, v := range o.positions {
		out = append(out, v)
	}
	return out
}

// GetAllAccounts returns every account seen.
func (o *OMS) GetAllAccounts() []*core.Account {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Account, 0, len(o.accounts))
	for _, v := range o.accounts {
		out = append(out, v)
	}
	return out
}

// GetAllContracts returns every contract seen.
func (o *OMS) GetAllContracts() []*core.Contract {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Contract, 0, len(o.contracts))
	for _, v := range o.contracts {
		out = append(out, v)
	}
	return out
}

// GetAllActiveOrders returns every order in a non-terminal status.
func (o *OMS) GetAllActiveOrders() []*core.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Order, 0, len(o.activeOrders))
	for _, v := range o.activeOrders {
		out = append(out, v)
	}
	return out
}

// GetAllActiveQuotes returns every quote in a non-terminal status.
func (o *OMS) GetAllActiveQuotes() []*core.Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*core.Quote, 0, len(o.activeQuotes))
	for _, v := range o.activeQuotes {
		out = append(out, v)
	}
	return out
}

// FilterOrders returns orders sorted by datetime ascending, skipping those
// without a datetime. start and end bound the range inclusively when set.
// A positive limit keeps the last N after the range filter.
func (o *OMS) FilterOrders(limit int, start, end *time.Time) []*core.Order {
	o.mu.RLock()
	candidates := make([]*core.Order, 0, len(o.orders))
	for _, ord := range o.orders {
		if ord.Datetime.IsZero() {
			continue
		}
		candidates = append(candidates, ord)
	}
	o.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Datetime.Before(candidates[j].Datetime)
	})

	filtered := candidates[:0]
	for _, ord := range candidates {
		if start != nil && ord.Datetime.Before(*start) {
			continue
		}
		if end != nil && ord.Datetime.After(*end) {
			continue
		}
		filtered = append(filtered, ord)
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
