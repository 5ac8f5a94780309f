package adapter

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// Receiver yields downstream command payloads. The ZMQ SUB socket
// implements it; Recv returns when a frame arrives or the transport shuts
// down.
type Receiver interface {
	Recv() (payload []byte, err error)
}

// RunCommandLoop drains the receiver until it fails. Long work such as
// log scans happens here, on the adapter's goroutine, never on the bus
// worker.
func (a *Adapter) RunCommandLoop(recv Receiver) {
	for {
		payload, err := recv.Recv()
		if err != nil {
			if a.logger != nil {
				a.logger.Info("adapter command loop stopped", "error", err.Error())
			}
			return
		}
		a.HandleCommand(payload)
	}
}

// HandleCommand parses and dispatches one downstream frame. Malformed
// JSON is logged and dropped.
func (a *Adapter) HandleCommand(payload []byte) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		if a.logger != nil {
			a.logger.Warn("adapter dropped malformed command", "error", err.Error())
		}
		return
	}

	switch cmd.Cmd {
	case "snapshot":
		a.Snapshot()
	case "order.query":
		a.handleOrderQuery(cmd.Data)
	case "log.query":
		a.handleLogQuery(cmd.Data)
	case "order.modify":
		a.handleOrderModify(cmd.Data)
	case "order.cancel":
		a.handleOrderCancel(cmd.Data)
	case "position.close":
		a.handlePositionClose(cmd.Data)
	default:
		a.bus.Put(event.New(event.TopicCommand, &core.Command{Cmd: cmd.Cmd, Data: cmd.Data}))
	}
}

var queryTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseQueryTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (a *Adapter) handleOrderQuery(data map[string]any) {
	limit := intField(data, "limit")
	start := parseQueryTime(data["start_date"])
	end := parseQueryTime(data["end_date"])

	orders := a.oms.FilterOrders(limit, start, end)
	maps := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		maps = append(maps, o.ToMap())
	}
	a.enqueue("orders", map[string]any{"orders": maps})
}

func (a *Adapter) handleOrderCancel(data map[string]any) {
	vtOrderID, _ := data["vt_orderid"].(string)
	order := a.oms.GetOrder(vtOrderID)
	if order == nil {
		if a.logger != nil {
			a.logger.Warn("cancel for unknown order", "vt_orderid", vtOrderID)
		}
		return
	}
	a.bus.Put(event.New(event.TopicCancelReq, order.CancelRequest()))
}

// handleOrderModify builds a ModifyRequest, falling back to the order's
// current values for fields the command omits.
func (a *Adapter) handleOrderModify(data map[string]any) {
	vtOrderID, _ := data["vt_orderid"].(string)
	order := a.oms.GetOrder(vtOrderID)
	if order == nil {
		if a.logger != nil {
			a.logger.Warn("modify for unknown order", "vt_orderid", vtOrderID)
		}
		return
	}

	req := &core.ModifyRequest{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		Exchange:     order.Exchange,
		Qty:          order.Volume,
		Price:        order.Price,
		TriggerPrice: order.TriggerPrice,
	}
	if v, ok := data["qty"].(float64); ok {
		req.Qty = decimal.NewFromFloat(v)
	}
	if v, ok := data["price"].(float64); ok {
		req.Price = decimal.NewFromFloat(v)
	}
	if v, ok := data["trigger_price"].(float64); ok {
		req.TriggerPrice = decimal.NewFromFloat(v)
	}
	a.bus.Put(event.New(event.TopicModifyReq, req))
}

// handlePositionClose flattens one position with a MARKET order in the
// opposite direction.
func (a *Adapter) handlePositionClose(data map[string]any) {
	vtPositionID, _ := data["vt_positionid"].(string)

	var position *core.Position
	for _, p := range a.oms.GetAllPositions() {
		if p.VtPositionID() == vtPositionID {
			position = p
			break
		}
	}
	if position == nil || position.Volume.IsZero() {
		if a.logger != nil {
			a.logger.Warn("close for unknown position", "vt_positionid", vtPositionID)
		}
		return
	}

	req := &core.OrderRequest{
		Symbol:    position.Symbol,
		Exchange:  position.Exchange,
		Direction: position.Direction.Opposite(),
		Type:      core.TypeMarket,
		Volume:    position.Volume.Abs(),
		Offset:    core.OffsetClose,
		Reference: "Engine_Close",
	}
	a.bus.Put(event.New(event.TopicOrderReq, req))
}
