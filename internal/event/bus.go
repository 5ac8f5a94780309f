package event

import (
	"sync"
	"time"

	"cta_runtime/internal/core"
)

type registration struct {
	id uint64
	h  Handler
}

// registry maps topics to handler lists in registration order. It is shared
// by both bus implementations.
type registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]registration
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]registration)}
}

func (r *registry) register(topic string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[topic] = append(r.handlers[topic], registration{id: r.nextID, h: h})
	return Subscription{topic: topic, id: r.nextID}
}

func (r *registry) unregister(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.handlers[sub.topic]
	for i, reg := range regs {
		if reg.id == sub.id {
			r.handlers[sub.topic] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// snapshot returns the handler list for a topic at this instant.
func (r *registry) snapshot(topic string) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[topic]
}

// AsyncBus dispatches events from an internal queue on a single worker
// goroutine. Handlers therefore never run concurrently with each other, and
// per-topic delivery is FIFO. A handler panic is recovered and logged; it
// never takes the worker down.
type AsyncBus struct {
	*registry

	queue  chan Event
	logger core.ILogger

	timerInterval time.Duration
	stopOnce      sync.Once
	stop          chan struct{}
	done          chan struct{}
	timerDone     chan struct{}
}

// Option configures an AsyncBus.
type Option func(*AsyncBus)

// WithQueueSize overrides the default event queue capacity.
func WithQueueSize(n int) Option {
	return func(b *AsyncBus) { b.queue = make(chan Event, n) }
}

// WithTimer enables the periodic timer topic at the given interval.
func WithTimer(interval time.Duration) Option {
	return func(b *AsyncBus) { b.timerInterval = interval }
}

// NewAsyncBus creates a bus. Call Start to launch the worker.
func NewAsyncBus(logger core.ILogger, opts ...Option) *AsyncBus {
	b := &AsyncBus{
		registry: newRegistry(),
		queue:    make(chan Event, 10000),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the worker and, when configured, the timer stream.
func (b *AsyncBus) Start() {
	go b.run()
	if b.timerInterval > 0 {
		b.timerDone = make(chan struct{})
		go b.runTimer()
	}
}

// Stop drains nothing further; queued events that were not yet dispatched
// are dropped.
func (b *AsyncBus) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
	if b.timerDone != nil {
		<-b.timerDone
	}
}

// Put enqueues an event without blocking the caller beyond queue contention.
func (b *AsyncBus) Put(ev Event) {
	select {
	case b.queue <- ev:
	case <-b.stop:
	}
}

// Register adds a handler for the topic and returns its subscription handle.
func (b *AsyncBus) Register(topic string, h Handler) Subscription {
	return b.register(topic, h)
}

// Unregister removes a previously registered handler. Unknown handles are
// ignored, so double-unregister is harmless.
func (b *AsyncBus) Unregister(sub Subscription) {
	b.unregister(sub)
}

func (b *AsyncBus) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ev)
		case <-b.stop:
			return
		}
	}
}

func (b *AsyncBus) runTimer() {
	defer close(b.timerDone)
	ticker := time.NewTicker(b.timerInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			b.Put(New(TopicTimer, now))
		case <-b.stop:
			return
		}
	}
}

func (b *AsyncBus) dispatch(ev Event) {
	for _, reg := range b.snapshot(ev.Topic) {
		b.invoke(reg.h, ev)
	}
}

func (b *AsyncBus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("event handler panic", "topic", ev.Topic, "panic", r)
			}
		}
	}()
	h(ev)
}

// SyncBus dispatches inline on the caller's goroutine. Backtests use it so
// every event chain resolves before the next bar is processed. It is not
// safe for concurrent producers.
type SyncBus struct {
	*registry

	logger core.ILogger

	// events published while a dispatch is in progress are queued and
	// drained afterwards, preserving FIFO order.
	pending     []Event
	dispatching bool
}

// NewSyncBus creates a synchronous bus.
func NewSyncBus(logger core.ILogger) *SyncBus {
	return &SyncBus{registry: newRegistry(), logger: logger}
}

// Register adds a handler for the topic.
func (b *SyncBus) Register(topic string, h Handler) Subscription {
	return b.register(topic, h)
}

// Unregister removes a handler.
func (b *SyncBus) Unregister(sub Subscription) {
	b.unregister(sub)
}

// Put dispatches the event to every registered handler before returning.
// Nested Put calls from inside a handler are queued and drained in order.
func (b *SyncBus) Put(ev Event) {
	b.pending = append(b.pending, ev)
	if b.dispatching {
		return
	}
	b.dispatching = true
	defer func() { b.dispatching = false }()
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending = b.pending[1:]
		for _, reg := range b.snapshot(next.Topic) {
			b.invoke(reg.h, next)
		}
	}
}

func (b *SyncBus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("event handler panic", "topic", ev.Topic, "panic", r)
			}
		}
	}()
	h(ev)
}
