// ABOUTME: Redis-backed bus for agents running in another process
// ABOUTME: Inbound uses an RPUSH/BLPOP list, outbound uses PUBLISH/SUBSCRIBE

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes every Redis key and channel used by the bus.
const DefaultKeyPrefix = "webchat:bus:"

// consumeBlock bounds each BLPOP so ctx cancellation is noticed.
const consumeBlock = time.Second

// RedisConfig configures a Redis bus.
type RedisConfig struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for the inbound list and outbound channel. ENV: BUS_KEY_PREFIX
	KeyPrefix string `env:"BUS_KEY_PREFIX,default=webchat:bus:"`
}

// RedisConfigFromEnv loads RedisConfig from the environment.
func RedisConfigFromEnv() (RedisConfig, error) {
	var cfg RedisConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decoding redis bus env: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return cfg, nil
}

// Redis implements Bus and AgentSide over a Redis server.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	closed    atomic.Bool
	logger    *slog.Logger
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "redis-bus"),
	}
}

func (r *Redis) inboundKey() string      { return r.keyPrefix + "inbound" }
func (r *Redis) outboundChannel() string { return r.keyPrefix + "outbound" }

// PublishInbound appends msg to the inbound list.
func (r *Redis) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if r.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding inbound message: %w", err)
	}
	if err := r.client.RPush(ctx, r.inboundKey(), data).Err(); err != nil {
		return fmt.Errorf("pushing inbound message: %w", err)
	}
	return nil
}

// ConsumeInbound pops the oldest inbound message, blocking until one arrives.
func (r *Redis) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	for {
		if r.closed.Load() {
			return InboundMessage{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return InboundMessage{}, err
		}

		res, err := r.client.BLPop(ctx, consumeBlock, r.inboundKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return InboundMessage{}, ctx.Err()
			}
			return InboundMessage{}, fmt.Errorf("popping inbound message: %w", err)
		}
		// BLPOP returns [key, value].
		if len(res) != 2 {
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Warn("dropping malformed inbound message", "error", err)
			continue
		}
		return msg, nil
	}
}

// PublishOutbound publishes msg on the outbound channel.
func (r *Redis) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if r.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding outbound message: %w", err)
	}
	if err := r.client.Publish(ctx, r.outboundChannel(), data).Err(); err != nil {
		return fmt.Errorf("publishing outbound message: %w", err)
	}
	return nil
}

// SubscribeOutbound calls handler for each outbound message until ctx is done.
func (r *Redis) SubscribeOutbound(ctx context.Context, handler OutboundHandler) error {
	if r.closed.Load() {
		return ErrClosed
	}
	sub := r.client.Subscribe(ctx, r.outboundChannel())
	defer sub.Close()

	// Wait for the subscription to be confirmed before delivering.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.outboundChannel(), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			var msg OutboundMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("dropping malformed outbound message", "error", err)
				continue
			}
			handler(msg)
		}
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

var (
	_ Bus       = (*Redis)(nil)
	_ AgentSide = (*Redis)(nil)
)
