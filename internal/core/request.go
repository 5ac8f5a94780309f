package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest asks a gateway to create a new order.
type OrderRequest struct {
	Symbol       string
	Exchange     Exchange
	Direction    Direction
	Type         OrderType
	Volume       decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	Offset       Offset
	Reference    string
}

func (r *OrderRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }

// CreateOrder builds the order object a gateway tracks for this request.
func (r *OrderRequest) CreateOrder(orderID, gatewayName string) *Order {
	return &Order{
		GatewayName:  gatewayName,
		Symbol:       r.Symbol,
		Exchange:     r.Exchange,
		OrderID:      orderID,
		Type:         r.Type,
		Direction:    r.Direction,
		Offset:       r.Offset,
		Price:        r.Price,
		Volume:       r.Volume,
		TriggerPrice: r.TriggerPrice,
		Reference:    r.Reference,
		Status:       StatusSubmitting,
		Datetime:     time.Now(),
	}
}

// CancelRequest asks a gateway to cancel an existing order.
type CancelRequest struct {
	OrderID  string
	Symbol   string
	Exchange Exchange
}

func (r *CancelRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }

// ModifyRequest asks a gateway to amend the quantity, price or trigger price
// of an existing order.
type ModifyRequest struct {
	OrderID      string
	Symbol       string
	Exchange     Exchange
	Qty          decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
}

func (r *ModifyRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }

// SubscribeRequest asks a gateway to start streaming market data for a
// symbol.
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

func (r *SubscribeRequest) VtSymbol() string { return VtSymbol(r.Symbol, r.Exchange) }
