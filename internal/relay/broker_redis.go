package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker fans envelopes out over a Redis pub/sub channel
type RedisBroker struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger

	pubsub *redis.PubSub
}

func NewRedisBroker(rdb redis.UniversalClient, channel string, logger *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = "roomly:relay"
	}
	return &RedisBroker{rdb: rdb, channel: channel, logger: logger}
}

func (b *RedisBroker) Start(ctx context.Context, deliver func(Envelope)) error {
	b.pubsub = b.rdb.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := b.pubsub.Channel()
	go func() {
		for msg := range ch {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			deliver(env)
		}
	}()
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBroker) Close() error {
	if b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
