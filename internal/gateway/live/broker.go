// Package live adapts an external venue client to the runtime's gateway
// surface: local order ids, stop order simulation on ticks, venue status
// mapping, and order/trade/position event synthesis.
package live

import (
	"context"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
)

// BrokerClient is the thin surface a vendor SDK must expose. Callbacks
// arrive on the vendor's own thread; the gateway serializes them.
type BrokerClient interface {
	Connect(ctx context.Context) error
	Close() error

	// Unlock enables trading on the venue session. Venues without a
	// trading lock return nil.
	Unlock() error

	Subscribe(symbols []string) error

	// PlaceOrder submits and returns the venue's order id.
	PlaceOrder(req *core.OrderRequest) (string, error)
	CancelOrder(brokerOrderID string) error
	ModifyOrder(brokerOrderID string, qty, price decimal.Decimal) error

	SetCallbacks(cb Callbacks)
}

// OrderUpdate is a venue push for one order.
type OrderUpdate struct {
	BrokerOrderID string
	VenueStatus   string
	Traded        decimal.Decimal
	AvgFillPrice  decimal.Decimal
}

// DealUpdate is a venue push for one fill.
type DealUpdate struct {
	BrokerOrderID string
	DealID        string
	Price         decimal.Decimal
	Volume        decimal.Decimal
}

// Callbacks are invoked by the broker client.
type Callbacks struct {
	OnTick  func(tick *core.Tick)
	OnOrder func(update OrderUpdate)
	OnDeal  func(deal DealUpdate)
}

// MapVenueStatus translates a venue order state into the runtime status.
// Unrecognized states map to UNKNOWN, which counts as active so the order
// stays visible until the venue resolves it.
func MapVenueStatus(venue string) core.OrderStatus {
	switch venue {
	case "WAITING_SUBMIT", "SUBMITTING":
		return core.StatusSubmitting
	case "SUBMITTED":
		return core.StatusNotTraded
	case "FILLED_PART":
		return core.StatusPartTraded
	case "FILLED_ALL":
		return core.StatusAllTraded
	case "CANCELLED_PART":
		return core.StatusPartCancelled
	case "CANCELLED_ALL", "DELETED":
		return core.StatusAllCancelled
	case "FAILED", "DISABLED":
		return core.StatusRejected
	default:
		return core.StatusUnknown
	}
}
