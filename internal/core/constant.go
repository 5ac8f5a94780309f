// Package core defines the domain model and the core interfaces shared by
// every subsystem of the trading runtime.
package core

// Direction of an order, trade or position.
type Direction string

const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
	DirectionNet   Direction = "Net"
)

// Opposite returns the closing direction for a position held in d.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Offset of an order or trade.
type Offset string

const (
	OffsetNone  Offset = ""
	OffsetOpen  Offset = "Open"
	OffsetClose Offset = "Close"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusSubmitting    OrderStatus = "Submitting"
	StatusNotTraded     OrderStatus = "Not Traded"
	StatusPartTraded    OrderStatus = "Partially Traded"
	StatusAllTraded     OrderStatus = "Fully Traded"
	StatusPartCancelled OrderStatus = "Partially Cancelled"
	StatusAllCancelled  OrderStatus = "Cancelled"
	StatusRejected      OrderStatus = "Rejected"
	StatusPending       OrderStatus = "Pending Submit"
	StatusUnknown       OrderStatus = "Unknown"
	StatusModified      OrderStatus = "Modified"
)

var activeStatuses = map[OrderStatus]bool{
	StatusSubmitting: true,
	StatusNotTraded:  true,
	StatusPartTraded: true,
	StatusPending:    true,
	StatusUnknown:    true,
	StatusModified:   true,
}

// IsActive reports whether the status is non-terminal.
func (s OrderStatus) IsActive() bool {
	return activeStatuses[s]
}

// OrderType distinguishes the matching semantics of an order.
type OrderType string

const (
	TypeLimit         OrderType = "Limit"
	TypeMarket        OrderType = "Market"
	TypeStopLimit     OrderType = "STP_LMT"
	TypeStopMarket    OrderType = "STP_MKT"
	TypeAbsoluteLimit OrderType = "ABS_LMT"
	TypeFAK           OrderType = "FAK"
	TypeFOK           OrderType = "FOK"
)

// IsStop reports whether the order rests in the inactive book until its
// trigger price is reached.
func (t OrderType) IsStop() bool {
	return t == TypeStopLimit || t == TypeStopMarket
}

// Exchange identifies the listing venue of a contract.
type Exchange string

const (
	ExchangeHKFE    Exchange = "HKFE"
	ExchangeSEHK    Exchange = "SEHK"
	ExchangeSHFE    Exchange = "SHFE"
	ExchangeCFFEX   Exchange = "CFFEX"
	ExchangeCME     Exchange = "CME"
	ExchangeSGX     Exchange = "SGX"
	ExchangeLocal   Exchange = "LOCAL"
	ExchangeGlobal  Exchange = "GLOBAL"
	ExchangeUnknown Exchange = "UNKNOWN"
)

// Product classifies a contract.
type Product string

const (
	ProductEquity  Product = "Equity"
	ProductFutures Product = "Futures"
	ProductIndex   Product = "Index"
	ProductSpot    Product = "Spot"
)

// LogLevel tags log events carried over the bus.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)
