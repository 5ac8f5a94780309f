// Package adapter connects one engine process to the hub over ZMQ
// PUB/SUB. Outbound order and position events carry an (epoch, seq) pair;
// a snapshot command starts a new epoch so consumers can resynchronize,
// and any message enqueued under an older epoch is dropped before it is
// sent.
package adapter

import (
	"encoding/json"
	"sync"
	"time"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// Publisher sends one topic-tagged payload. The ZMQ PUB socket implements
// it; tests substitute a recorder.
type Publisher interface {
	Send(topic string, payload []byte) error
}

// Message is the upstream wire frame.
type Message struct {
	Type   string `json:"type"`
	Engine string `json:"engine"`
	Ts     int64  `json:"ts"`
	Epoch  int64  `json:"epoch"`
	Seq    int64  `json:"seq"`
	Data   any    `json:"data"`
}

// command is the downstream wire frame.
type command struct {
	Cmd  string         `json:"cmd"`
	Data map[string]any `json:"data"`
	Ts   int64          `json:"ts"`
}

type queued struct {
	msgType  string
	data     any
	enqEpoch int64
	snapshot bool
}

// Adapter owns the outbound queue and the epoch/seq counters.
type Adapter struct {
	engine string
	bus    event.Bus
	oms    core.OMSReader
	pub    Publisher
	logger core.ILogger

	logDir string

	queue chan queued

	mu    sync.Mutex
	epoch int64
	seq   int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	now func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogDir overrides the directory searched by log queries.
func WithLogDir(dir string) Option {
	return func(a *Adapter) { a.logDir = dir }
}

// New creates an adapter for one engine and registers its bus handlers.
// Call Start to launch the sender.
func New(engine string, bus event.Bus, oms core.OMSReader, pub Publisher, logger core.ILogger, opts ...Option) *Adapter {
	a := &Adapter{
		engine: engine,
		bus:    bus,
		oms:    oms,
		pub:    pub,
		logger: logger,
		logDir: "logs",
		queue:  make(chan queued, 10000),
		epoch:  1,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	bus.Register(event.TopicOrder, a.handleOrder)
	bus.Register(event.TopicPosition, a.handlePosition)
	return a
}

// Start launches the sender goroutine.
func (a *Adapter) Start() {
	go a.run()
}

// Stop shuts the sender down; queued messages are discarded.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// Topic is the upstream ZMQ topic for this engine.
func (a *Adapter) Topic() string { return "order:" + a.engine }

// CommandTopics are the downstream topics the adapter listens on.
func (a *Adapter) CommandTopics() []string {
	return []string{"cmd:" + a.engine, "cmd:all"}
}

func (a *Adapter) handleOrder(ev event.Event) {
	order, ok := ev.Data.(*core.Order)
	if !ok {
		return
	}
	a.enqueue("order", order.ToMap())
}

func (a *Adapter) handlePosition(ev event.Event) {
	position, ok := ev.Data.(*core.Position)
	if !ok {
		return
	}
	a.enqueue("position", position.ToMap())
}

// enqueue tags the payload with the current epoch. The tag is compared
// against the epoch again at send time; a snapshot in between invalidates
// the entry.
func (a *Adapter) enqueue(msgType string, data any) {
	a.mu.Lock()
	epoch := a.epoch
	a.mu.Unlock()

	select {
	case a.queue <- queued{msgType: msgType, data: data, enqEpoch: epoch}:
	default:
		if a.logger != nil {
			a.logger.Warn("adapter queue full, dropping message", "type", msgType)
		}
	}
}

// Snapshot starts a new epoch: bump the counter, reset seq and enqueue
// one snapshot message computed from the OMS. In-flight messages from the
// previous epoch fail the enqueue-epoch check and are dropped.
func (a *Adapter) Snapshot() {
	a.mu.Lock()
	a.epoch++
	a.seq = 0
	epoch := a.epoch
	a.mu.Unlock()

	orders := a.oms.GetAllActiveOrders()
	positions := a.oms.GetAllPositions()

	orderMaps := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		orderMaps = append(orderMaps, o.ToMap())
	}
	positionMaps := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		positionMaps = append(positionMaps, p.ToMap())
	}

	data := map[string]any{
		"orders":      orderMaps,
		"positions":   positionMaps,
		"snapshot_at": a.now().Unix(),
	}

	select {
	case a.queue <- queued{msgType: "snapshot", data: data, enqEpoch: epoch, snapshot: true}:
	default:
		if a.logger != nil {
			a.logger.Error("adapter queue full, snapshot dropped")
		}
	}
}

func (a *Adapter) run() {
	defer close(a.done)
	for {
		select {
		case q := <-a.queue:
			a.send(q)
		case <-a.stop:
			return
		}
	}
}

// send assigns (epoch, seq) and publishes, unless the entry is stale.
func (a *Adapter) send(q queued) {
	a.mu.Lock()
	if q.enqEpoch < a.epoch {
		a.mu.Unlock()
		return
	}
	if !q.snapshot {
		a.seq++
	}
	msg := Message{
		Type:   q.msgType,
		Engine: a.engine,
		Ts:     a.now().Unix(),
		Epoch:  a.epoch,
		Seq:    a.seq,
		Data:   q.data,
	}
	a.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("adapter marshal failed", "type", q.msgType, "error", err.Error())
		}
		return
	}
	if err := a.pub.Send(a.Topic(), payload); err != nil && a.logger != nil {
		a.logger.Error("adapter send failed", "type", q.msgType, "error", err.Error())
	}
}
