package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"popfork/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []*Message
}

func (r *recorder) HandleMessage(from string, msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "msg:"+from)
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) PeerConnected(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "connected:"+peer)
}

func (r *recorder) PeerDisconnected(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "disconnected:"+peer)
}

func (r *recorder) snapshot() ([]string, []*Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]*Message(nil), r.msgs...)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	t.Cleanup(h.Close)
	return h
}

func waitIdle(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, h.WaitIdle(ctx))
}

func TestHubDeliversInOrder(t *testing.T) {
	h := newTestHub(t)
	a, b := new(recorder), new(recorder)
	require.NoError(t, h.Register("a", a))
	require.NoError(t, h.Register("b", b))

	require.False(t, h.Send("a", "b", &Message{Type: MsgGetData}))
	require.NoError(t, h.Connect("a", "b"))
	require.NoError(t, h.Connect("b", "a"))
	require.True(t, h.Connected("b", "a"))
	require.Equal(t, []string{"b"}, h.Peers("a"))

	for i := 0; i < 50; i++ {
		require.True(t, h.Send("a", "b", &Message{Type: MsgGetData}))
		require.True(t, h.Send("a", "b", &Message{Type: MsgBlock}))
	}
	waitIdle(t, h)

	events, msgs := b.snapshot()
	require.Equal(t, "connected:a", events[0])
	require.Len(t, msgs, 100)
	for i, m := range msgs {
		if i%2 == 0 {
			require.Equal(t, MsgGetData, m.Type)
		} else {
			require.Equal(t, MsgBlock, m.Type)
		}
	}

	h.Disconnect("a", "b")
	waitIdle(t, h)
	require.False(t, h.Send("a", "b", &Message{}))
	events, _ = a.snapshot()
	require.Equal(t, "disconnected:b", events[len(events)-1])
}

func TestHubErrors(t *testing.T) {
	h := newTestHub(t)
	require.NoError(t, h.Register("a", new(recorder)))
	require.True(t, errors.Is(h.Register("a", new(recorder)), errors.Conflict))
	require.True(t, errors.Is(h.Connect("a", "a"), errors.BadRequest))
	require.True(t, errors.Is(h.Connect("a", "nobody"), errors.NotFound))

	h.Close()
	require.True(t, errors.Is(h.Register("b", new(recorder)), errors.BadRequest))
}

func TestHubIsolate(t *testing.T) {
	h := newTestHub(t)
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, h.Register(n, new(recorder)))
	}
	require.NoError(t, h.Connect("a", "b"))
	require.NoError(t, h.Connect("a", "c"))
	require.NoError(t, h.Connect("b", "c"))

	h.Isolate("a")
	require.Empty(t, h.Peers("a"))
	require.Equal(t, []string{"c"}, h.Peers("b"))
	waitIdle(t, h)
}
