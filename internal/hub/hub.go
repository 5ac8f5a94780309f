// Package hub fans engine events out to WebSocket clients and relays their
// commands back over ZMQ. Clients speak JSON-RPC 2.0 and subscribe to
// topics; slow or silent clients are evicted rather than allowed to stall
// the fan-out.
package hub

import (
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/prometheus/client_golang/prometheus"

	"cta_runtime/internal/core"
)

var (
	hubActiveClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of connected WebSocket clients",
	})

	hubRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_rejected_total",
		Help: "Total number of rejected WebSocket connections",
	}, []string{"reason"})

	hubEventsFanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_events_fanned_total",
		Help: "Total number of event notifications delivered to clients",
	})
)

func init() {
	prometheus.MustRegister(hubActiveClients)
	prometheus.MustRegister(hubRejectedTotal)
	prometheus.MustRegister(hubEventsFanned)
}

const (
	defaultSendTimeout = time.Second
	defaultPingEvery   = 15 * time.Second
	defaultIdleAfter   = 45 * time.Second
)

// notification is a JSON-RPC server-to-client message without an id.
type notification struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func notify(method string, params any) notification {
	return notification{Jsonrpc: "2.0", Method: method, Params: params}
}

type client struct {
	id       string
	username string

	send chan any
	done chan struct{}

	mu         sync.Mutex
	topics     map[string]bool
	lastActive time.Time
	closed     bool
}

func newClient(id string, now time.Time) *client {
	return &client{
		id:         id,
		send:       make(chan any, 256),
		done:       make(chan struct{}),
		topics:     make(map[string]bool),
		lastActive: now,
	}
}

func (c *client) subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.topics[t] = true
	}
}

func (c *client) unsubscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

func (c *client) subscribedTo(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *client) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

func (c *client) touch(now time.Time) {
	c.mu.Lock()
	c.lastActive = now
	c.mu.Unlock()
}

func (c *client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// trySend queues a message for the write pump. It gives up after timeout so
// one stalled client cannot hold the fan-out worker.
func (c *client) trySend(msg any, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		return false
	}
}

// close signals the write pump to exit. The send channel itself is never
// closed; a blocked trySend unblocks through the done channel.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Hub tracks connected clients and distributes topic events through a
// worker pool.
type Hub struct {
	logger core.ILogger
	pool   *pond.WorkerPool

	sendTimeout time.Duration
	pingEvery   time.Duration
	idleAfter   time.Duration

	mu      sync.RWMutex
	clients map[*client]bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	now func() time.Time
}

func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		logger:      logger,
		pool:        pond.New(8, 1024),
		sendTimeout: defaultSendTimeout,
		pingEvery:   defaultPingEvery,
		idleAfter:   defaultIdleAfter,
		clients:     make(map[*client]bool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start launches the ping sweeper.
func (h *Hub) Start() {
	go h.runSweeper()
}

// Stop evicts every client and drains the fan-out pool.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done

	h.mu.Lock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	hubActiveClients.Set(0)

	h.pool.StopAndWait()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	hubActiveClients.Set(float64(total))
	if h.logger != nil {
		h.logger.Info("client connected", "client_id", c.id, "total", total)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	hubActiveClients.Set(float64(total))
	if h.logger != nil {
		h.logger.Info("client disconnected", "client_id", c.id, "total", total)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish fans one topic event out to every subscribed client. Each
// delivery runs on the pool; a client that cannot accept the message within
// the send timeout is evicted.
func (h *Hub) Publish(topic string, data any) {
	msg := notify("event.emit", map[string]any{"topic": topic, "data": data})

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribedTo(topic) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c := c
		h.pool.Submit(func() {
			if !c.trySend(msg, h.sendTimeout) {
				if h.logger != nil {
					h.logger.Warn("client send timed out, evicting", "client_id", c.id, "topic", topic)
				}
				h.remove(c)
				return
			}
			hubEventsFanned.Inc()
		})
	}
}

func (h *Hub) runSweeper() {
	defer close(h.done)
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stop:
			return
		}
	}
}

// sweep pings every client and evicts those silent past the idle
// threshold.
func (h *Hub) sweep() {
	now := h.now()

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	ping := notify("meta.ping", map[string]any{"ts": now.Unix()})
	for _, c := range targets {
		if now.Sub(c.idleSince()) > h.idleAfter {
			if h.logger != nil {
				h.logger.Warn("client idle, evicting", "client_id", c.id)
			}
			h.remove(c)
			continue
		}
		if !c.trySend(ping, h.sendTimeout) {
			h.remove(c)
		}
	}
}
