package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
)

// SimBroker is an in-memory BrokerClient. It accepts every order and lets
// callers push venue updates, which makes it usable both in tests and as
// a paper-trading venue for a live engine without broker credentials.
type SimBroker struct {
	mu        sync.Mutex
	cb        Callbacks
	connected bool
	nextID    int

	// failure switches for tests
	FailConnect bool
	FailUnlock  bool
	FailPlace   bool

	Placed    []*core.OrderRequest
	Cancelled []string
	Modified  []string
}

// NewSimBroker creates an empty simulator.
func NewSimBroker() *SimBroker {
	return &SimBroker{}
}

func (s *SimBroker) Connect(ctx context.Context) error {
	if s.FailConnect {
		return errors.New("sim: connect refused")
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *SimBroker) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *SimBroker) Unlock() error {
	if s.FailUnlock {
		return errors.New("sim: unlock refused")
	}
	return nil
}

func (s *SimBroker) Subscribe(symbols []string) error { return nil }

func (s *SimBroker) PlaceOrder(req *core.OrderRequest) (string, error) {
	if s.FailPlace {
		return "", errors.New("sim: order refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.Placed = append(s.Placed, req)
	return fmt.Sprintf("SIM-%d", s.nextID), nil
}

func (s *SimBroker) CancelOrder(brokerOrderID string) error {
	s.mu.Lock()
	s.Cancelled = append(s.Cancelled, brokerOrderID)
	s.mu.Unlock()
	return nil
}

func (s *SimBroker) ModifyOrder(brokerOrderID string, qty, price decimal.Decimal) error {
	s.mu.Lock()
	s.Modified = append(s.Modified, brokerOrderID)
	s.mu.Unlock()
	return nil
}

func (s *SimBroker) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// PushTick delivers a market data tick as the venue would.
func (s *SimBroker) PushTick(tick *core.Tick) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb.OnTick != nil {
		cb.OnTick(tick)
	}
}

// PushOrderUpdate delivers an order state push.
func (s *SimBroker) PushOrderUpdate(update OrderUpdate) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb.OnOrder != nil {
		cb.OnOrder(update)
	}
}

// PushDeal delivers a fill push.
func (s *SimBroker) PushDeal(deal DealUpdate) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb.OnDeal != nil {
		cb.OnDeal(deal)
	}
}
