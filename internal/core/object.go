package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// VtSymbol joins a symbol with its exchange into the composite id used as a
// map key everywhere (e.g. "MHI2507.HKFE").
func VtSymbol(symbol string, exchange Exchange) string {
	return symbol + "." + string(exchange)
}

// Bar is a candlestick over a fixed interval. Datetime marks the bar start.
// Bars are immutable once produced; events carry copies.
type Bar struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Datetime    time.Time
	Interval    Interval

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

func (b *Bar) VtSymbol() string { return VtSymbol(b.Symbol, b.Exchange) }

// Tick is a last-price snapshot with an optional top-of-book level.
type Tick struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Datetime    time.Time

	LastPrice  decimal.Decimal
	LastVolume decimal.Decimal
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal

	BidPrice  decimal.Decimal
	BidVolume decimal.Decimal
	AskPrice  decimal.Decimal
	AskVolume decimal.Decimal
}

func (t *Tick) VtSymbol() string { return VtSymbol(t.Symbol, t.Exchange) }

// Order tracks the latest state of a single order. The gateway that created
// the order owns it until it reaches a terminal status; everyone else
// observes copies delivered as events.
type Order struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	OrderID     string

	Type          OrderType
	Direction     Direction
	Offset        Offset
	Price         decimal.Decimal
	Volume        decimal.Decimal
	Traded        decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        OrderStatus
	Datetime      time.Time
	BrokerOrderID string
	Reference     string
	TriggerPrice  decimal.Decimal

	// TriggeredBar is the start time of the bar on which a stop order was
	// activated; zero for orders that never rested in the inactive book.
	TriggeredBar time.Time
}

func (o *Order) VtSymbol() string  { return VtSymbol(o.Symbol, o.Exchange) }
func (o *Order) VtOrderID() string { return o.GatewayName + "." + o.OrderID }
func (o *Order) IsActive() bool    { return o.Status.IsActive() }

// Clone returns a value copy suitable for publishing as an event.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// CancelRequest builds a cancel request for this order.
func (o *Order) CancelRequest() *CancelRequest {
	return &CancelRequest{OrderID: o.OrderID, Symbol: o.Symbol, Exchange: o.Exchange}
}

// ToMap flattens the order for the JSON wire protocol.
func (o *Order) ToMap() map[string]any {
	var dt any
	if !o.Datetime.IsZero() {
		dt = o.Datetime.Format(time.RFC3339)
	}
	return map[string]any{
		"symbol":         o.Symbol,
		"exchange":       string(o.Exchange),
		"orderid":        o.OrderID,
		"type":           string(o.Type),
		"direction":      string(o.Direction),
		"offset":         string(o.Offset),
		"price":          o.Price.InexactFloat64(),
		"volume":         o.Volume.InexactFloat64(),
		"traded":         o.Traded.InexactFloat64(),
		"avgFillPrice":   o.AvgFillPrice.InexactFloat64(),
		"status":         string(o.Status),
		"datetime":       dt,
		"broker_orderid": o.BrokerOrderID,
		"reference":      o.Reference,
		"trigger_price":  o.TriggerPrice.InexactFloat64(),
		"vt_symbol":      o.VtSymbol(),
		"vt_orderid":     o.VtOrderID(),
	}
}

// Trade is one fill of an order. An order may fill across several trades.
type Trade struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	OrderID     string
	TradeID     string

	Direction    Direction
	Offset       Offset
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Traded       decimal.Decimal
	AvgFillPrice decimal.Decimal
	Status       OrderStatus
	Datetime     time.Time
	Reference    string
}

func (t *Trade) VtSymbol() string  { return VtSymbol(t.Symbol, t.Exchange) }
func (t *Trade) VtOrderID() string { return t.GatewayName + "." + t.OrderID }
func (t *Trade) VtTradeID() string { return t.GatewayName + "." + t.TradeID }

func (t *Trade) Clone() *Trade {
	c := *t
	return &c
}

// SignedVolume is +Volume for LONG fills, -Volume for SHORT fills.
func (t *Trade) SignedVolume() decimal.Decimal {
	if t.Direction == DirectionShort {
		return t.Volume.Abs().Neg()
	}
	return t.Volume.Abs()
}

// Position is one position holding. Direction NET positions carry a signed
// interpretation of Volume through Direction.
type Position struct {
	GatewayName    string
	Symbol         string
	Exchange       Exchange
	Direction      Direction
	ContractSymbol string

	Volume decimal.Decimal
	Frozen decimal.Decimal
	Price  decimal.Decimal
	PnL    decimal.Decimal
	Margin decimal.Decimal
}

func (p *Position) VtSymbol() string { return VtSymbol(p.Symbol, p.Exchange) }

func (p *Position) VtPositionID() string {
	return p.GatewayName + "." + p.VtSymbol() + "." + string(p.Direction)
}

func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// SignedVolume is +Volume for LONG, -Volume for SHORT.
func (p *Position) SignedVolume() decimal.Decimal {
	if p.Direction == DirectionShort {
		return p.Volume.Abs().Neg()
	}
	return p.Volume.Abs()
}

// ToMap flattens the position for the JSON wire protocol.
func (p *Position) ToMap() map[string]any {
	return map[string]any{
		"symbol":        p.Symbol,
		"exchange":      string(p.Exchange),
		"direction":     string(p.Direction),
		"volume":        p.Volume.InexactFloat64(),
		"frozen":        p.Frozen.InexactFloat64(),
		"price":         p.Price.InexactFloat64(),
		"margin":        p.Margin.InexactFloat64(),
		"vt_symbol":     p.VtSymbol(),
		"vt_positionid": p.VtPositionID(),
	}
}

// Account aggregates cash, margin and P&L for one trading account.
type Account struct {
	GatewayName string
	AccountID   string

	Balance       decimal.Decimal
	Frozen        decimal.Decimal
	Cash          decimal.Decimal
	Margin        decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Equity        decimal.Decimal
	Available     decimal.Decimal
}

func (a *Account) VtAccountID() string { return a.GatewayName + "." + a.AccountID }

func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Contract holds the static terms of a tradeable instrument.
type Contract struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Name        string
	Product     Product
	Size        decimal.Decimal
	PriceTick   decimal.Decimal
	MinVolume   decimal.Decimal
}

func (c *Contract) VtSymbol() string { return VtSymbol(c.Symbol, c.Exchange) }

// Quote tracks a two-sided quote.
type Quote struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	QuoteID     string

	BidPrice  decimal.Decimal
	BidVolume decimal.Decimal
	AskPrice  decimal.Decimal
	AskVolume decimal.Decimal
	Status    OrderStatus
	Datetime  time.Time
	Reference string
}

func (q *Quote) VtSymbol() string  { return VtSymbol(q.Symbol, q.Exchange) }
func (q *Quote) VtQuoteID() string { return q.GatewayName + "." + q.QuoteID }
func (q *Quote) IsActive() bool    { return q.Status.IsActive() }

// Command is an operator instruction relayed from the hub. Data keys are
// command-specific.
type Command struct {
	Cmd  string
	Data map[string]any
}

// LogEntry is a log message routed over the bus so the owning engine writes
// it with its own logger.
type LogEntry struct {
	Msg   string
	Level LogLevel
	Time  time.Time
}

// NewLog builds an INFO level log entry stamped now.
func NewLog(msg string) *LogEntry {
	return &LogEntry{Msg: msg, Level: LevelInfo, Time: time.Now()}
}

// NewLogLevel builds a log entry with an explicit level.
func NewLogLevel(msg string, level LogLevel) *LogEntry {
	return &LogEntry{Msg: msg, Level: level, Time: time.Now()}
}
