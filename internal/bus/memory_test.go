// ABOUTME: Tests for the in-memory bus
// ABOUTME: Covers FIFO inbound delivery, blocking consume, outbound fan-out, and close

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_InboundFIFO(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		require.NoError(t, m.PublishInbound(ctx, InboundMessage{Channel: "web", ChatID: "abc", Content: c}))
	}
	assert.Equal(t, 3, m.Pending())

	for _, want := range []string{"one", "two", "three"} {
		msg, err := m.ConsumeInbound(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.Content)
	}
	assert.Equal(t, 0, m.Pending())
}

func TestMemory_ConsumeBlocksUntilPublish(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	got := make(chan InboundMessage, 1)
	go func() {
		msg, err := m.ConsumeInbound(context.Background())
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.PublishInbound(context.Background(), InboundMessage{Content: "late"}))

	select {
	case msg := <-got:
		assert.Equal(t, "late", msg.Content)
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestMemory_ConsumeContextCancel(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.ConsumeInbound(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_OutboundFanOut(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var a, b []string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = m.SubscribeOutbound(ctx, func(msg OutboundMessage) {
			mu.Lock()
			a = append(a, msg.Content)
			mu.Unlock()
		})
	}()
	go func() {
		defer wg.Done()
		_ = m.SubscribeOutbound(ctx, func(msg OutboundMessage) {
			mu.Lock()
			b = append(b, msg.Content)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return m.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.PublishOutbound(ctx, OutboundMessage{ChatID: "x", Content: "reply"}))

	cancel()
	wg.Wait()

	assert.Equal(t, []string{"reply"}, a)
	assert.Equal(t, []string{"reply"}, b)
	assert.Empty(t, m.subscribers, "subscribers removed on exit")
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()

	errc := make(chan error, 2)
	go func() {
		_, err := m.ConsumeInbound(context.Background())
		errc <- err
	}()
	go func() {
		errc <- m.SubscribeOutbound(context.Background(), func(OutboundMessage) {})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errc, ErrClosed)
	}
	assert.ErrorIs(t, m.PublishInbound(context.Background(), InboundMessage{}), ErrClosed)
	assert.ErrorIs(t, m.PublishOutbound(context.Background(), OutboundMessage{}), ErrClosed)
}
