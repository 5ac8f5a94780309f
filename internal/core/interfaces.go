package core

import "time"

// ILogger is the structured logging interface used across the runtime.
// Fields are variadic key/value pairs.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
}

// Gateway is the order entry surface shared by the backtest matcher and live
// venue adapters. SendOrder returns the locally generated order id.
type Gateway interface {
	Name() string
	SendOrder(req *OrderRequest) string
	CancelOrder(req *CancelRequest)
	ModifyOrder(req *ModifyRequest)
}

// EventSink receives the gateway's order lifecycle callbacks. The backtest
// engine implements it directly; the live runtime bridges it onto the bus.
type EventSink interface {
	OnOrder(order *Order)
	OnTrade(trade *Trade)
	OnPosition(position *Position)
}

// OMSReader is the read-only snapshot view consumed by the adapter, the
// rollover manager and strategies. Implementations return copies or
// treat returned values as immutable.
type OMSReader interface {
	GetOrder(vtOrderID string) *Order
	GetPosition(symbol string) *Position
	GetAllPositions() []*Position
	GetAllActiveOrders() []*Order
	FilterOrders(limit int, start, end *time.Time) []*Order
}
