package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"masterok/internal/metrics"
)

// DefaultChannel is the Redis channel instances exchange frames on.
const DefaultChannel = "masterok:fanout"

// RedisBroadcaster publishes frames to a Redis channel so that every
// instance's Relay can hand them to its local hub. Publish performs a
// network round trip; wrap it in Async.
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
	logger  Logger
	timeout time.Duration
}

// NewRedisBroadcaster builds a broadcaster for channel (DefaultChannel when empty).
func NewRedisBroadcaster(rdb *redis.Client, channel string, logger Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{rdb: rdb, channel: channel, logger: logger, timeout: 2 * time.Second}
}

func (b *RedisBroadcaster) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(NewFrame(topic, payload))
	if err != nil {
		b.logger.Errorf("fanout encode topic=%s: %v", topic, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		metrics.Event("redis", "dropped")
		b.logger.Errorf("fanout redis publish topic=%s: %v", topic, err)
		return
	}
	metrics.Event("redis", "sent")
}

// Deliverer accepts encoded frames for local subscribers.
type Deliverer interface {
	Deliver(topic string, data []byte)
}

// Relay subscribes to the shared channel and forwards every frame to a local hub.
type Relay struct {
	rdb     *redis.Client
	channel string
	local   Deliverer
	logger  Logger
}

// NewRelay builds a relay.
func NewRelay(rdb *redis.Client, channel string, local Deliverer, logger Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{rdb: rdb, channel: channel, local: local, logger: logger}
}

// Run forwards frames until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward([]byte(msg.Payload))
		}
	}
}

func (r *Relay) forward(data []byte) {
	var head struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Topic == "" {
		r.logger.Errorf("fanout relay: bad frame %q", string(data))
		return
	}
	r.local.Deliver(head.Topic, data)
}
