// ABOUTME: Backend dispatch turning one user message into one assistant reply
// ABOUTME: Calls a direct responder or publishes on the bus and awaits the broker

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/webchat-gateway/internal/broker"
	"github.com/2389/webchat-gateway/internal/bus"
	"github.com/2389/webchat-gateway/internal/session"
)

// ErrBackendFailure wraps any failure of the backend to produce a reply.
var ErrBackendFailure = errors.New("backend failure")

// Responder answers a message directly.
type Responder interface {
	Respond(ctx context.Context, content, sessionKey, channel, connectionID string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, content, sessionKey, channel, connectionID string) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, content, sessionKey, channel, connectionID string) (string, error) {
	return f(ctx, content, sessionKey, channel, connectionID)
}

// Dispatcher routes messages to the backend. When Responder is set it is
// used directly; otherwise the message goes out on Bus and the reply comes
// back through OnOutbound.
type Dispatcher struct {
	Responder      Responder
	Bus            bus.Bus
	Broker         *broker.Broker
	Channel        string
	SenderID       string
	RequestTimeout time.Duration
	// Issued reports whether a chat id belongs to a recently issued session.
	// Optional; consulted only for replies that find no waiter.
	Issued         func(chatID string) bool
	Logger         *slog.Logger
}

// Dispatch produces the reply text for content sent on sess.
// A bus request that times out yields broker.FallbackTimeout without error.
func (d *Dispatcher) Dispatch(ctx context.Context, content string, sess *session.Session) (string, error) {
	if d.Responder != nil {
		return d.respond(ctx, content, sess)
	}
	if d.Bus == nil || d.Broker == nil {
		return "", fmt.Errorf("%w: no backend configured", ErrBackendFailure)
	}

	msg := bus.InboundMessage{
		Channel:  d.Channel,
		SenderID: d.SenderID,
		ChatID:   sess.ID,
		Content:  content,
	}
	publish := func(ctx context.Context) error {
		return d.Bus.PublishInbound(ctx, msg)
	}

	text, err := d.Broker.Await(ctx, sess.ID, publish, d.RequestTimeout)
	if err != nil {
		if errors.Is(err, broker.ErrCancelled) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrBackendFailure, err)
	}
	return text, nil
}

func (d *Dispatcher) respond(ctx context.Context, content string, sess *session.Session) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger().Error("responder panicked", "session_id", sess.ID, "panic", r)
			text, err = "", fmt.Errorf("%w: responder panic: %v", ErrBackendFailure, r)
		}
	}()

	text, err = d.Responder.Respond(ctx, content, sess.Key, d.Channel, sess.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendFailure, err)
	}
	return text, nil
}

// OnOutbound settles the pending request for msg.ChatID.
// Replies on other channels are ignored.
func (d *Dispatcher) OnOutbound(msg bus.OutboundMessage) {
	if msg.Channel != "" && d.Channel != "" && msg.Channel != d.Channel {
		return
	}
	if d.Broker == nil {
		return
	}
	if d.Broker.Settle(msg.ChatID, msg.Content) {
		return
	}
	if d.Issued != nil && d.Issued(msg.ChatID) {
		d.logger().Info("late reply dropped, request already ended", "chat_id", msg.ChatID)
		return
	}
	d.logger().Warn("reply for unknown chat dropped", "chat_id", msg.ChatID)
}

// Run subscribes to outbound replies until ctx is done. It is a no-op in
// responder mode.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Responder != nil || d.Bus == nil {
		<-ctx.Done()
		return nil
	}
	err := d.Bus.SubscribeOutbound(ctx, d.OnOutbound)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, bus.ErrClosed) {
		return fmt.Errorf("subscribing to outbound replies: %w", err)
	}
	return nil
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
