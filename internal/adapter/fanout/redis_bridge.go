package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/carepulse/internal/domain"
)

const bridgeChannelPrefix = "signal:fanout:"

// RedisBridge relays messages through Redis pub/sub so every API replica delivers
// them to its own attached subscribers.
type RedisBridge struct {
	client redis.UniversalClient
	local  domain.Publisher
	logger *slog.Logger
}

// NewRedisBridge creates a bridge that feeds messages received from Redis into local.
func NewRedisBridge(client redis.UniversalClient, local domain.Publisher, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		local:  local,
		logger: logger.With("component", "fanout_redis_bridge"),
	}
}

// Publish sends msg to every replica, including this one.
func (b *RedisBridge) Publish(ctx context.Context, channel string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, bridgeChannelPrefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run relays messages from Redis to the local hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to fan-out channels: %w", err)
	}
	b.logger.Info("Relaying fan-out messages from Redis")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, m)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, m *redis.Message) {
	var msg domain.Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		b.logger.Warn("Skipping undecodable fan-out message", "channel", m.Channel, "error", err)
		return
	}
	channel := strings.TrimPrefix(m.Channel, bridgeChannelPrefix)
	if err := b.local.Publish(ctx, channel, msg); err != nil {
		b.logger.Warn("Local delivery failed", "channel", channel, "error", err)
	}
}
