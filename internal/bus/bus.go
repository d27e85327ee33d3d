// ABOUTME: Message types and interfaces for the external agent bus
// ABOUTME: Gateway publishes inbound requests and subscribes to outbound replies

package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned by bus operations after Close.
var ErrClosed = errors.New("bus closed")

// InboundMessage is a user message headed for the agent.
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
}

// OutboundMessage is an agent reply headed back to a session.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// OutboundHandler receives agent replies.
type OutboundHandler func(OutboundMessage)

// Bus is the gateway's side of the agent bus.
type Bus interface {
	// PublishInbound enqueues a message for the agent.
	PublishInbound(ctx context.Context, msg InboundMessage) error
	// SubscribeOutbound calls handler for every reply until ctx is done.
	SubscribeOutbound(ctx context.Context, handler OutboundHandler) error
	Close() error
}

// AgentSide is the consumer's side of the agent bus.
type AgentSide interface {
	// ConsumeInbound blocks until a message is available or ctx is done.
	ConsumeInbound(ctx context.Context) (InboundMessage, error)
	PublishOutbound(ctx context.Context, msg OutboundMessage) error
}
