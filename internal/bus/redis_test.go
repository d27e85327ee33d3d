// ABOUTME: Tests for the Redis bus against a local Redis server
// ABOUTME: Skipped when Redis is not reachable on localhost:6379

package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	prefix := "test:webchat:" + uuid.NewString()[:8] + ":"
	r := NewRedisWithClient(client, prefix, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		client.Del(context.Background(), r.inboundKey())
		_ = r.Close()
	})
	return r
}

func TestRedis_InboundRoundTrip(t *testing.T) {
	r := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in := InboundMessage{Channel: "web", SenderID: "web_user", ChatID: "abcd1234", Content: "hello"}
	require.NoError(t, r.PublishInbound(ctx, in))
	require.NoError(t, r.PublishInbound(ctx, InboundMessage{ChatID: "abcd1234", Content: "second"}))

	got, err := r.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = r.ConsumeInbound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
}

func TestRedis_OutboundSubscribe(t *testing.T) {
	r := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan OutboundMessage, 1)
	go func() {
		_ = r.SubscribeOutbound(ctx, func(msg OutboundMessage) { received <- msg })
	}()

	out := OutboundMessage{Channel: "web", ChatID: "abcd1234", Content: "pong"}
	// Publish until the subscription is live.
	require.Eventually(t, func() bool {
		_ = r.PublishOutbound(ctx, out)
		select {
		case got := <-received:
			return assert.Equal(t, out, got)
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRedis_ConsumeHonoursContext(t *testing.T) {
	r := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.ConsumeInbound(ctx)
	assert.Error(t, err)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("BUS_KEY_PREFIX", "custom:")

	cfg, err := RedisConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, "custom:", cfg.KeyPrefix)
}
