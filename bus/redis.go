package bus

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroker carries the topic over Redis pub/sub so validation
// outcomes reach views served by other processes. Same contract as the
// local broker: best-effort, at-most-once, no replay. Transport
// failures degrade to no-ops — they are logged, never raised.
type RedisBroker struct {
	rdb   *redis.Client
	topic string
}

func NewRedisBroker(rdb *redis.Client, topic string) *RedisBroker {
	return &RedisBroker{rdb: rdb, topic: topic}
}

// New picks the transport: Redis when configured, in-process otherwise.
func New(rdb *redis.Client) Broker {
	if rdb != nil {
		return NewRedisBroker(rdb, Topic)
	}
	return NewLocalBroker()
}

func (b *RedisBroker) Open() Channel {
	return &redisChannel{
		broker: b,
		origin: uuid.NewString(),
		subs:   make(map[int]Handler),
	}
}

// envelope tags every message with the publishing handle's origin so a
// channel can drop its own publications coming back off the wire.
type envelope struct {
	Origin string `json:"origin"`
	Event
}

type redisChannel struct {
	broker  *RedisBroker
	origin  string
	mu      sync.Mutex
	subs    map[int]Handler
	nextSub int
	pubsub  *redis.PubSub
	closed  bool
}

func (c *redisChannel) Publish(ctx context.Context, ev Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	payload, err := json.Marshal(envelope{Origin: c.origin, Event: ev})
	if err != nil {
		log.Printf("[BUS] marshal failed, event dropped: %v", err)
		return
	}
	if err := c.broker.rdb.Publish(ctx, c.broker.topic, payload).Err(); err != nil {
		log.Printf("[BUS] publish to %s failed, event dropped: %v", c.broker.topic, err)
	}
}

func (c *redisChannel) Subscribe(h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	if c.pubsub == nil {
		c.pubsub = c.broker.rdb.Subscribe(context.Background(), c.broker.topic)
		go c.consume(c.pubsub)
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

func (c *redisChannel) consume(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("[BUS] bad payload on %s: %v", c.broker.topic, err)
			continue
		}
		if env.Origin == c.origin {
			continue
		}
		c.mu.Lock()
		handlers := make([]Handler, 0, len(c.subs))
		for id := 0; id < c.nextSub; id++ {
			if h, ok := c.subs[id]; ok {
				handlers = append(handlers, h)
			}
		}
		c.mu.Unlock()
		for _, h := range handlers {
			h(env.Event)
		}
	}
}

func (c *redisChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ps := c.pubsub
	c.pubsub = nil
	c.subs = make(map[int]Handler)
	c.mu.Unlock()
	if ps != nil {
		if err := ps.Close(); err != nil {
			log.Printf("[BUS] pubsub close: %v", err)
		}
	}
}
