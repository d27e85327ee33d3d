// ABOUTME: In-process bus with an unbounded inbound queue and outbound fan-out
// ABOUTME: Used when gateway and agent run in the same process and in tests

package bus

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// Memory implements both Bus and AgentSide in memory.
type Memory struct {
	mu          sync.Mutex
	inbound     *queue.Queue
	ready       chan struct{} // signalled when inbound becomes non-empty
	subscribers map[string]OutboundHandler
	closed      bool
	done        chan struct{}
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		inbound:     queue.New(),
		ready:       make(chan struct{}, 1),
		subscribers: make(map[string]OutboundHandler),
		done:        make(chan struct{}),
	}
}

// PublishInbound appends msg to the inbound queue.
func (m *Memory) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.inbound.Add(msg)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return nil
}

// ConsumeInbound removes the oldest inbound message, waiting if none is queued.
func (m *Memory) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return InboundMessage{}, ErrClosed
		}
		if m.inbound.Length() > 0 {
			msg := m.inbound.Remove().(InboundMessage)
			if m.inbound.Length() > 0 {
				select {
				case m.ready <- struct{}{}:
				default:
				}
			}
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-m.done:
			return InboundMessage{}, ErrClosed
		case <-ctx.Done():
			return InboundMessage{}, ctx.Err()
		}
	}
}

// PublishOutbound delivers msg to every current subscriber.
func (m *Memory) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	handlers := make([]OutboundHandler, 0, len(m.subscribers))
	for _, h := range m.subscribers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// SubscribeOutbound registers handler and blocks until ctx is done or the bus closes.
func (m *Memory) SubscribeOutbound(ctx context.Context, handler OutboundHandler) error {
	id := uuid.NewString()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subscribers[id] = handler
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Pending returns the number of queued inbound messages.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inbound.Length()
}

// Subscribers returns the number of active outbound subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// Close wakes all waiters. Safe to call more than once.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

var (
	_ Bus       = (*Memory)(nil)
	_ AgentSide = (*Memory)(nil)
)
