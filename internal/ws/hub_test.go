package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecycle/internal/model"
)

func newTestConn(hub *Hub) *Conn {
	return NewConn(nil, hub, model.Actor{ID: "user-1", Role: model.RoleUser})
}

func TestSlowConsumerDropped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := newTestConn(hub)
	hub.Register(conn)
	hub.Subscribe(conn, "table:repairs")

	for i := 0; i < cap(conn.send); i++ {
		conn.send <- []byte("{}")
	}

	// Delivering twice against a full buffer: the first drops the
	// connection, the second must find nothing to deliver to. Neither may
	// panic the hub goroutine.
	hub.broadcast(Event{Channel: "table:repairs", Message: map[string]interface{}{"type": "repair.created"}})
	hub.broadcast(Event{Channel: "table:repairs", Message: map[string]interface{}{"type": "repair.created"}})

	hub.mu.RLock()
	_, registered := hub.conns[conn]
	subs := len(hub.subs["table:repairs"])
	hub.mu.RUnlock()
	assert.False(t, registered)
	assert.Zero(t, subs)

	// send was closed exactly once; draining terminates.
	drained := 0
	for range conn.send {
		drained++
	}
	assert.Equal(t, cap(conn.send), drained)

	// ReadPump's deferred cleanup runs after the drop; it must be a no-op.
	hub.unregister(conn)
}

func TestBroadcastDeliversToSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	subscribed := newTestConn(hub)
	other := newTestConn(hub)
	hub.Register(subscribed)
	hub.Register(other)
	hub.Subscribe(subscribed, "table:pickups")

	hub.broadcast(Event{Channel: "table:pickups", Message: map[string]interface{}{"type": "pickup.created"}})

	require.Len(t, subscribed.send, 1)
	assert.Len(t, other.send, 0)
}
