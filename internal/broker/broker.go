// ABOUTME: Correlation broker pairing each published request with exactly one reply
// ABOUTME: Pending slots keyed by session id, settled by replies, timeouts, or cancellation

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FallbackTimeout is returned in place of a reply when the wait times out.
const FallbackTimeout = "Request timed out. Please try again."

var (
	// ErrCancelled is returned by Await when its slot was cancelled.
	ErrCancelled = errors.New("request cancelled")
	// ErrDuplicate is returned by Await when a slot for the id is already pending.
	ErrDuplicate = errors.New("request already pending")
	// ErrClosed is returned by Await after Close.
	ErrClosed = errors.New("broker closed")
)

// slot is a pending wait. Identity matters: removal compares pointers.
type slot struct {
	future  *Future[string]
	created time.Time
}

// Broker correlates outbound requests with their replies.
// A slot exists only while its Await call is running.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*slot
	closed  bool
	logger  *slog.Logger
}

// New creates a Broker.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		pending: make(map[string]*slot),
		logger:  logger.With("component", "broker"),
	}
}

// Await registers a slot for id, calls publish, and waits for the reply.
//
// The slot is registered before publish runs so a fast reply is never lost.
// On timeout Await returns FallbackTimeout with a nil error. If the slot is
// cancelled it returns ErrCancelled; if ctx ends it returns ctx.Err().
// The slot is removed on every exit path.
func (b *Broker) Await(ctx context.Context, id string, publish func(context.Context) error, timeout time.Duration) (string, error) {
	s := &slot{future: NewFuture[string](), created: time.Now()}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	if _, exists := b.pending[id]; exists {
		b.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	b.pending[id] = s
	b.mu.Unlock()

	defer b.remove(id, s)

	if err := publish(ctx); err != nil {
		return "", fmt.Errorf("publishing request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.future.Done():
		return s.future.Result()
	case <-timer.C:
		// A reply racing the timer still wins if it settled first.
		if s.future.Fail(context.DeadlineExceeded) {
			b.logger.Warn("request timed out", "id", id, "timeout", timeout)
			return FallbackTimeout, nil
		}
		return s.future.Result()
	case <-ctx.Done():
		if s.future.Fail(ctx.Err()) {
			return "", ctx.Err()
		}
		return s.future.Result()
	}
}

// Settle delivers text to the slot pending for id.
// Returns false when nothing is pending, which is logged and otherwise ignored.
func (b *Broker) Settle(id, text string) bool {
	b.mu.Lock()
	s, ok := b.pending[id]
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("reply for unknown request dropped", "id", id)
		return false
	}
	if !s.future.Settle(text) {
		b.logger.Debug("duplicate reply dropped", "id", id)
		return false
	}
	b.logger.Debug("request settled", "id", id, "waited", time.Since(s.created))
	return true
}

// Cancel fails the slot pending for id with ErrCancelled.
func (b *Broker) Cancel(id string) bool {
	b.mu.Lock()
	s, ok := b.pending[id]
	b.mu.Unlock()

	if !ok {
		return false
	}
	return s.future.Fail(ErrCancelled)
}

// Pending returns the number of outstanding slots.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close cancels every pending slot and rejects further Await calls.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	slots := make([]*slot, 0, len(b.pending))
	for _, s := range b.pending {
		slots = append(slots, s)
	}
	b.mu.Unlock()

	for _, s := range slots {
		s.future.Fail(ErrCancelled)
	}
}

// remove deletes the slot for id only if it is still s.
func (b *Broker) remove(id string, s *slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.pending[id]; ok && cur == s {
		delete(b.pending, id)
	}
}
