package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"

	"cta_runtime/internal/core"
	"cta_runtime/pkg/retry"
)

// EngineFeed yields upstream engine frames. The ZMQ SUB socket implements
// it.
type EngineFeed interface {
	Recv() (topic string, payload []byte, err error)
}

// Bridge moves engine messages from the feed into the hub. Each frame is
// re-published on its ZMQ topic (order:<engine>) so WebSocket clients
// subscribe with the same topic names the engines publish on.
type Bridge struct {
	hub    *Hub
	logger core.ILogger
}

func NewBridge(hub *Hub, logger core.ILogger) *Bridge {
	return &Bridge{hub: hub, logger: logger}
}

// Run drains the feed until it fails.
func (b *Bridge) Run(feed EngineFeed) {
	for {
		topic, payload, err := feed.Recv()
		if err != nil {
			if b.logger != nil {
				b.logger.Info("engine feed stopped", "error", err.Error())
			}
			return
		}
		b.handle(topic, payload)
	}
}

func (b *Bridge) handle(topic string, payload []byte) {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		if b.logger != nil {
			b.logger.Warn("bridge dropped malformed frame", "topic", topic, "error", err.Error())
		}
		return
	}
	b.hub.Publish(topic, msg)
}

// ZmqEngineFeed is a SUB socket dialled out to every engine publisher,
// subscribed to the order topic prefix.
type ZmqEngineFeed struct {
	socket zmq4.Socket
}

func NewZmqEngineFeed(ctx context.Context, addrs []string, logger core.ILogger) (*ZmqEngineFeed, error) {
	socket := zmq4.NewSub(ctx)
	for _, addr := range addrs {
		addr := addr
		err := retry.DoNotify(ctx, retry.DialPolicy, nil, func(attempt int, err error, backoff time.Duration) {
			if logger != nil {
				logger.Warn("engine feed dial failed, retrying",
					"addr", addr, "attempt", attempt, "backoff", backoff.String(), "error", err.Error())
			}
		}, func() error {
			return socket.Dial(addr)
		})
		if err != nil {
			return nil, fmt.Errorf("dial engine feed %s: %w", addr, err)
		}
	}
	if err := socket.SetOption(zmq4.OptionSubscribe, "order:"); err != nil {
		return nil, fmt.Errorf("subscribe order topics: %w", err)
	}
	return &ZmqEngineFeed{socket: socket}, nil
}

func (f *ZmqEngineFeed) Recv() (string, []byte, error) {
	msg, err := f.socket.Recv()
	if err != nil {
		return "", nil, err
	}
	if len(msg.Frames) < 2 {
		return "", nil, fmt.Errorf("short engine frame: %d parts", len(msg.Frames))
	}
	return string(msg.Frames[0]), msg.Frames[1], nil
}

func (f *ZmqEngineFeed) Close() error { return f.socket.Close() }

// ZmqCommandPublisher binds the PUB side of the command downlink; engine
// receivers dial in and subscribe to their own cmd topic.
type ZmqCommandPublisher struct {
	socket zmq4.Socket
}

func NewZmqCommandPublisher(ctx context.Context, addr string) (*ZmqCommandPublisher, error) {
	socket := zmq4.NewPub(ctx)
	if err := socket.Listen(addr); err != nil {
		return nil, fmt.Errorf("bind command socket %s: %w", addr, err)
	}
	return &ZmqCommandPublisher{socket: socket}, nil
}

// SendCommand publishes one command frame on cmd:<engine>.
func (p *ZmqCommandPublisher) SendCommand(engine, cmd string, data map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"cmd":  cmd,
		"data": data,
		"ts":   time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return p.socket.Send(zmq4.NewMsgFrom([]byte("cmd:"+engine), payload))
}

func (p *ZmqCommandPublisher) Close() error { return p.socket.Close() }
