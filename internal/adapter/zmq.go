package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"

	"cta_runtime/internal/core"
	"cta_runtime/pkg/retry"
)

// ZmqPublisher is the PUB side of the engine uplink.
type ZmqPublisher struct {
	socket zmq4.Socket
}

// NewZmqPublisher binds a PUB socket on addr.
func NewZmqPublisher(ctx context.Context, addr string) (*ZmqPublisher, error) {
	socket := zmq4.NewPub(ctx)
	if err := socket.Listen(addr); err != nil {
		return nil, fmt.Errorf("bind pub socket %s: %w", addr, err)
	}
	return &ZmqPublisher{socket: socket}, nil
}

// Send publishes a two-frame message: topic, payload.
func (p *ZmqPublisher) Send(topic string, payload []byte) error {
	return p.socket.Send(zmq4.NewMsgFrom([]byte(topic), payload))
}

// Close shuts the socket.
func (p *ZmqPublisher) Close() error { return p.socket.Close() }

// ZmqReceiver is the SUB side of the command downlink. Cancelling the
// construction context unblocks Recv, which makes shutdown prompt.
type ZmqReceiver struct {
	socket zmq4.Socket
}

// NewZmqReceiver dials addr with backoff and subscribes to the topics.
func NewZmqReceiver(ctx context.Context, addr string, topics []string, logger core.ILogger) (*ZmqReceiver, error) {
	socket := zmq4.NewSub(ctx)

	err := retry.DoNotify(ctx, retry.DialPolicy, nil, func(attempt int, err error, backoff time.Duration) {
		if logger != nil {
			logger.Warn("command socket dial failed, retrying",
				"addr", addr, "attempt", attempt, "backoff", backoff.String(), "error", err.Error())
		}
	}, func() error {
		return socket.Dial(addr)
	})
	if err != nil {
		return nil, fmt.Errorf("dial sub socket %s: %w", addr, err)
	}

	for _, topic := range topics {
		if err := socket.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return &ZmqReceiver{socket: socket}, nil
}

// Recv returns the payload frame of the next command message.
func (r *ZmqReceiver) Recv() ([]byte, error) {
	msg, err := r.socket.Recv()
	if err != nil {
		return nil, err
	}
	if len(msg.Frames) < 2 {
		return nil, fmt.Errorf("short command frame: %d parts", len(msg.Frames))
	}
	return msg.Frames[1], nil
}

// Close shuts the socket.
func (r *ZmqReceiver) Close() error { return r.socket.Close() }
