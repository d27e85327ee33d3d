// ABOUTME: Bus consumer loop for the echo agent
// ABOUTME: Pops inbound messages and publishes one outbound reply per message

package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/webchat-gateway/internal/bus"
)

// ReplyFunc produces the reply for one inbound message.
type ReplyFunc func(ctx context.Context, msg bus.InboundMessage) (string, error)

// Server consumes inbound messages from a bus and answers them.
type Server struct {
	Side   bus.AgentSide
	Reply  ReplyFunc
	Delay  time.Duration // simulated thinking time before each reply
	Logger *slog.Logger

	// RetryMin is the first wait after a failed consume; it doubles up to
	// RetryMax and resets once a message arrives.
	RetryMin time.Duration
	RetryMax time.Duration
}

const (
	defaultRetryMin = 100 * time.Millisecond
	defaultRetryMax = 10 * time.Second
)

// Serve runs the echo agent against side until ctx is done.
func Serve(ctx context.Context, side bus.AgentSide, logger *slog.Logger) error {
	s := &Server{Side: side, Logger: logger}
	return s.Run(ctx)
}

// Run consumes until ctx is done or the bus closes.
func (s *Server) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "echo-agent")

	reply := s.Reply
	if reply == nil {
		reply = func(_ context.Context, msg bus.InboundMessage) (string, error) {
			return Echo(msg.Content), nil
		}
	}

	retryMin, retryMax := s.RetryMin, s.RetryMax
	if retryMin <= 0 {
		retryMin = defaultRetryMin
	}
	if retryMax < retryMin {
		retryMax = max(defaultRetryMax, retryMin)
	}
	wait := retryMin

	for {
		msg, err := s.Side.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrClosed) {
				return nil
			}
			logger.Warn("consuming inbound failed, retrying", "error", err, "retry_in", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
			wait = min(wait*2, retryMax)
			continue
		}
		wait = retryMin

		logger.Info("received message", "chat_id", msg.ChatID, "channel", msg.Channel, "length", len(msg.Content))

		text, err := reply(ctx, msg)
		if err != nil {
			logger.Error("reply failed", "chat_id", msg.ChatID, "error", err)
			text = "Error: " + err.Error()
		}

		if s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return nil
			}
		}

		out := bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: text}
		if err := s.Side.PublishOutbound(ctx, out); err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrClosed) {
				return nil
			}
			logger.Warn("publishing reply failed", "chat_id", msg.ChatID, "error", err)
		}
	}
}
