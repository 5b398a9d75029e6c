package network

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"popfork/errors"
	"popfork/ports"
)

// Handler receives what a hub delivers to one node. Calls for one node are
// made from a single goroutine in arrival order.
type Handler interface {
	HandleMessage(from string, msg *Message)
	PeerConnected(peer string)
	PeerDisconnected(peer string)
}

type eventType int

const (
	eventMessage eventType = iota
	eventConnected
	eventDisconnected
)

type envelope struct {
	typ  eventType
	from string
	msg  *Message
}

// inbox is an unbounded FIFO drained by one goroutine, so a handler can send
// while it is handling.
type inbox struct {
	mu     sync.Mutex
	queue  []envelope
	notify chan struct{}
}

func (b *inbox) push(e envelope) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *inbox) drain() []envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

type endpoint struct {
	name    string
	handler Handler
	inbox   *inbox
}

type link struct{ a, b string }

func newLink(a, b string) link {
	if a > b {
		a, b = b, a
	}
	return link{a, b}
}

// Hub is an in-process network. Nodes register a handler and exchange
// messages over explicit links that can be added and removed at any time.
type Hub struct {
	mu     sync.Mutex
	logger ports.Logger
	nodes  map[string]*endpoint
	links  map[link]struct{}

	pending atomic.Int64
	wg      sync.WaitGroup
	done    chan struct{}
	closed  atomic.Bool
}

func NewHub(logger ports.Logger) *Hub {
	return &Hub{
		logger: ensureLogger(logger).With("module", "hub"),
		nodes:  make(map[string]*endpoint),
		links:  make(map[link]struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a node and starts its delivery goroutine.
func (h *Hub) Register(name string, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return errors.BadRequest.With("hub is closed")
	}
	if _, ok := h.nodes[name]; ok {
		return errors.Conflict.WithFormat("node %q is already registered", name)
	}

	ep := &endpoint{name: name, handler: handler, inbox: &inbox{notify: make(chan struct{}, 1)}}
	h.nodes[name] = ep
	h.wg.Add(1)
	go h.run(ep)
	return nil
}

func (h *Hub) run(ep *endpoint) {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case <-ep.inbox.notify:
		}
		for _, e := range ep.inbox.drain() {
			switch e.typ {
			case eventMessage:
				mMessages.WithLabelValues(ep.name, e.msg.Type.String()).Inc()
				ep.handler.HandleMessage(e.from, e.msg)
			case eventConnected:
				ep.handler.PeerConnected(e.from)
			case eventDisconnected:
				ep.handler.PeerDisconnected(e.from)
			}
			h.pending.Add(-1)
		}
	}
}

func (h *Hub) deliver(to *endpoint, e envelope) {
	h.pending.Add(1)
	to.inbox.push(e)
}

// Connect links two registered nodes. Both are told about the new peer.
func (h *Hub) Connect(a, b string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ea, eb, err := h.pair(a, b)
	if err != nil {
		return err
	}
	l := newLink(a, b)
	if _, ok := h.links[l]; ok {
		return nil
	}
	h.links[l] = struct{}{}
	h.deliver(ea, envelope{typ: eventConnected, from: b})
	h.deliver(eb, envelope{typ: eventConnected, from: a})
	h.logger.Debug("Connected", "a", a, "b", b)
	return nil
}

// Disconnect removes the link between two nodes, if any.
func (h *Hub) Disconnect(a, b string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnect(a, b)
}

func (h *Hub) disconnect(a, b string) {
	l := newLink(a, b)
	if _, ok := h.links[l]; !ok {
		return
	}
	delete(h.links, l)
	if ea, ok := h.nodes[a]; ok {
		h.deliver(ea, envelope{typ: eventDisconnected, from: b})
	}
	if eb, ok := h.nodes[b]; ok {
		h.deliver(eb, envelope{typ: eventDisconnected, from: a})
	}
	h.logger.Debug("Disconnected", "a", a, "b", b)
}

// Isolate removes every link of a node.
func (h *Hub) Isolate(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.links {
		switch name {
		case l.a:
			h.disconnect(l.a, l.b)
		case l.b:
			h.disconnect(l.b, l.a)
		}
	}
}

// Send queues msg for delivery. It reports false when the nodes are not
// linked.
func (h *Hub) Send(from, to string, msg *Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.links[newLink(from, to)]; !ok {
		return false
	}
	ep, ok := h.nodes[to]
	if !ok {
		return false
	}
	h.deliver(ep, envelope{typ: eventMessage, from: from, msg: msg})
	return true
}

// Peers lists the nodes linked to name, sorted.
func (h *Hub) Peers(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var peers []string
	for l := range h.links {
		switch name {
		case l.a:
			peers = append(peers, l.b)
		case l.b:
			peers = append(peers, l.a)
		}
	}
	sort.Strings(peers)
	return peers
}

func (h *Hub) Connected(a, b string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.links[newLink(a, b)]
	return ok
}

// WaitIdle blocks until every queued delivery has been handled.
func (h *Hub) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for h.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return errors.Timeout.WithFormat("hub still has %d queued deliveries: %w", h.pending.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops every delivery goroutine. Queued deliveries are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed.Swap(true) {
		h.mu.Unlock()
		return
	}
	close(h.done)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) pair(a, b string) (*endpoint, *endpoint, error) {
	if a == b {
		return nil, nil, errors.BadRequest.WithFormat("cannot connect %q to itself", a)
	}
	ea, ok := h.nodes[a]
	if !ok {
		return nil, nil, errors.NotFound.WithFormat("node %q is not registered", a)
	}
	eb, ok := h.nodes[b]
	if !ok {
		return nil, nil, errors.NotFound.WithFormat("node %q is not registered", b)
	}
	return ea, eb, nil
}
