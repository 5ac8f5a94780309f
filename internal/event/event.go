// Package event implements the typed publish/subscribe bus that every
// subsystem of the runtime communicates through.
package event

// Topic names. Market data topics are also published with a composite
// suffix (symbol, interval) so handlers can subscribe narrowly.
const (
	TopicTick     = "tick"
	TopicBar      = "bar"
	TopicOrder    = "order"
	TopicTrade    = "trade"
	TopicPosition = "position"
	TopicAccount  = "account"
	TopicContract = "contract"
	TopicQuote    = "quote"
	TopicLog      = "log"
	TopicTimer    = "timer"

	TopicOrderReq  = "order.req"
	TopicCancelReq = "cancel.req"
	TopicModifyReq = "modify.req"

	TopicCommand   = "command"
	TopicRollover  = "rollover"
	TopicReconcile = "reconcile"
)

// BarTopic is the narrow per-series bar topic.
func BarTopic(vtSymbol, interval string) string {
	return TopicBar + ":" + vtSymbol + ":" + interval
}

// TickTopic is the narrow per-symbol tick topic.
func TickTopic(vtSymbol string) string {
	return TopicTick + ":" + vtSymbol
}

// Event is a tagged payload dispatched to every handler registered on its
// topic.
type Event struct {
	Topic string
	Data  any
}

// New builds an event.
func New(topic string, data any) Event {
	return Event{Topic: topic, Data: data}
}

// Handler processes one event. Handlers run on the bus worker and must not
// block.
type Handler func(Event)

// Subscription identifies one registered handler so it can be unregistered.
// The zero value is never issued.
type Subscription struct {
	topic string
	id    uint64
}

// Topic returns the topic the subscription is attached to.
func (s Subscription) Topic() string { return s.topic }

// Bus is the dispatch interface. AsyncBus drains a queue on a worker
// goroutine; SyncBus dispatches inline for deterministic backtests.
type Bus interface {
	Register(topic string, h Handler) Subscription
	Unregister(sub Subscription)
	Put(ev Event)
}
