package bus

import (
	"context"
	"sync"

	"breathesmart/models"
)

// Topic is the fixed broadcast channel name shared by every portal
// view. Kept identical to the browser-side channel name.
const Topic = "reports_channel"

const (
	EventApproved = "approved"
	EventRejected = "rejected"
)

// Event is one validation outcome fanned out to open views.
// Transient: never persisted, never replayed to late subscribers.
type Event struct {
	Type   string        `json:"type"`
	Report models.Report `json:"report"`
}

type Handler func(Event)

// Channel is one handle on the topic, analogous to a BroadcastChannel
// instance: it receives events published by other handles and none of
// its own. Delivery is best-effort, at-most-once, unacknowledged.
type Channel interface {
	// Publish never returns an error: the bus is advisory, a dropped
	// event is acceptable because views re-fetch their lists on load.
	Publish(ctx context.Context, ev Event)
	// Subscribe registers h for subsequent events and returns an
	// unsubscribe func releasing everything it registered.
	Subscribe(h Handler) (unsubscribe func())
	Close()
}

type Broker interface {
	Open() Channel
}

// LocalBroker fans out within a single process. It is the degraded
// mode used when no Redis transport is configured, and the fixture
// for bus tests.
type LocalBroker struct {
	mu       sync.RWMutex
	channels map[*localChannel]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{channels: make(map[*localChannel]struct{})}
}

func (b *LocalBroker) Open() Channel {
	ch := &localChannel{broker: b, subs: make(map[int]Handler)}
	b.mu.Lock()
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *LocalBroker) dispatch(from *localChannel, ev Event) {
	b.mu.RLock()
	targets := make([]*localChannel, 0, len(b.channels))
	for ch := range b.channels {
		if ch != from {
			targets = append(targets, ch)
		}
	}
	b.mu.RUnlock()
	for _, ch := range targets {
		ch.deliver(ev)
	}
}

func (b *LocalBroker) remove(ch *localChannel) {
	b.mu.Lock()
	delete(b.channels, ch)
	b.mu.Unlock()
}

type localChannel struct {
	broker  *LocalBroker
	mu      sync.Mutex
	subs    map[int]Handler
	nextSub int
	closed  bool
}

func (c *localChannel) Publish(_ context.Context, ev Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.broker.dispatch(c, ev)
}

func (c *localChannel) Subscribe(h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = h
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// deliver invokes handlers synchronously, in subscription order, so
// distinct events from one publisher arrive in publish order.
func (c *localChannel) deliver(ev Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for id := 0; id < c.nextSub; id++ {
		if h, ok := c.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *localChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = make(map[int]Handler)
	c.mu.Unlock()
	c.broker.remove(c)
}
