package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeRepublishesEngineFrames(t *testing.T) {
	h := NewHub(nil)
	defer h.pool.StopAndWait()

	c := newClient("a", h.now())
	c.subscribe([]string{"order:mhi_a"})
	h.add(c)

	b := NewBridge(h, nil)
	b.handle("order:mhi_a", []byte(`{"type":"order","engine":"mhi_a","epoch":1,"seq":3,"data":{}}`))

	n := recvNotification(t, c)
	require.Equal(t, "event.emit", n.Method)
	params := n.Params.(map[string]any)
	assert.Equal(t, "order:mhi_a", params["topic"])
	msg := params["data"].(map[string]any)
	assert.Equal(t, "order", msg["type"])
	assert.Equal(t, float64(3), msg["seq"])
}

func TestBridgeDropsMalformedFrames(t *testing.T) {
	h := NewHub(nil)
	defer h.pool.StopAndWait()

	c := newClient("a", h.now())
	c.subscribe([]string{"order:mhi_a"})
	h.add(c)

	b := NewBridge(h, nil)
	b.handle("order:mhi_a", []byte(`{broken`))

	select {
	case msg := <-c.send:
		t.Fatalf("unexpected delivery %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
