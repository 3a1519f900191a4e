package chat

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// eventBusChannel is the single Redis pub/sub channel shared by all
// instances. Routing happens via the frame's channel field, not via one
// Redis channel per conversation.
const eventBusChannel = "chat:events"

// Bus carries routed frames between hub instances. Publish fans one payload
// to every subscriber, the publisher included; Subscribe yields payloads in
// the order the bus saw them.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) <-chan []byte
}

// RedisBus is the Bus of a multi-node deployment: one shared pub/sub channel
// reaching every instance.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, eventBusChannel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) <-chan []byte {
	pubsub := b.client.Subscribe(ctx, eventBusChannel)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	return out
}
