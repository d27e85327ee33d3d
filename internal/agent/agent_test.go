// ABOUTME: Tests for the echo agent reply logic and bus consumer loop
// ABOUTME: Runs Serve against the in-memory bus

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/webchat-gateway/internal/bus"
)

func TestEcho(t *testing.T) {
	assert.Contains(t, Echo("hello"), "Echo: **hello**")
	assert.Contains(t, Echo("show me a LIST"), "- First item")
	assert.Contains(t, Echo("markdown please"), "**markdown**")
}

func TestResponder(t *testing.T) {
	r := Responder()

	text, err := r.Respond(context.Background(), "hi", "web:abc", "web", "abc")
	require.NoError(t, err)
	assert.Equal(t, Echo("hi"), text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Respond(ctx, "hi", "web:abc", "web", "abc")
	assert.ErrorIs(t, err, context.Canceled)
}

func runServer(t *testing.T, s *Server) (*bus.Memory, <-chan bus.OutboundMessage) {
	t.Helper()
	mem := bus.NewMemory()
	s.Side = mem
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	replies := make(chan bus.OutboundMessage, 8)
	go func() {
		_ = mem.SubscribeOutbound(ctx, func(m bus.OutboundMessage) { replies <- m })
	}()
	require.Eventually(t, func() bool { return mem.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		_ = mem.Close()
	})
	return mem, replies
}

func TestServe_RepliesPerMessage(t *testing.T) {
	mem, replies := runServer(t, &Server{})

	require.NoError(t, mem.PublishInbound(context.Background(), bus.InboundMessage{Channel: "web", ChatID: "s1", Content: "one"}))
	require.NoError(t, mem.PublishInbound(context.Background(), bus.InboundMessage{Channel: "web", ChatID: "s2", Content: "two"}))

	for _, want := range []struct{ chat, content string }{{"s1", "one"}, {"s2", "two"}} {
		select {
		case got := <-replies:
			assert.Equal(t, "web", got.Channel)
			assert.Equal(t, want.chat, got.ChatID)
			assert.Equal(t, Echo(want.content), got.Content)
		case <-time.After(time.Second):
			t.Fatal("no reply")
		}
	}
}

func TestServe_ReplyError(t *testing.T) {
	mem, replies := runServer(t, &Server{
		Reply: func(context.Context, bus.InboundMessage) (string, error) {
			return "", errors.New("no model")
		},
	})

	require.NoError(t, mem.PublishInbound(context.Background(), bus.InboundMessage{ChatID: "s1", Content: "x"}))

	select {
	case got := <-replies:
		assert.Equal(t, "Error: no model", got.Content)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestServe_StopsOnClose(t *testing.T) {
	mem := bus.NewMemory()
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), mem, nil) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, mem.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

// flakySide fails the first few consumes before reading from the wrapped bus.
type flakySide struct {
	*bus.Memory
	failures atomic.Int32
}

func (f *flakySide) ConsumeInbound(ctx context.Context) (bus.InboundMessage, error) {
	if f.failures.Add(-1) >= 0 {
		return bus.InboundMessage{}, errors.New("broker unreachable")
	}
	return f.Memory.ConsumeInbound(ctx)
}

func TestServe_RetriesFailedConsume(t *testing.T) {
	mem := bus.NewMemory()
	defer mem.Close()
	side := &flakySide{Memory: mem}
	side.failures.Store(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replies := make(chan bus.OutboundMessage, 1)
	go func() {
		_ = mem.SubscribeOutbound(ctx, func(m bus.OutboundMessage) { replies <- m })
	}()
	require.Eventually(t, func() bool { return mem.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	s := &Server{
		Side:     side,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		RetryMin: time.Millisecond,
		RetryMax: 4 * time.Millisecond,
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, mem.PublishInbound(ctx, bus.InboundMessage{Channel: "web", ChatID: "s1", Content: "after outage"}))

	select {
	case got := <-replies:
		assert.Equal(t, Echo("after outage"), got.Content)
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	assert.Less(t, side.failures.Load(), int32(0))

	cancel()
	assert.NoError(t, <-done)
}
