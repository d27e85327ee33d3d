// ABOUTME: Tests for the session registry and id generator
// ABOUTME: Covers registration, idempotent removal, touch, listing, and id reuse rejection

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/webchat-gateway/internal/dedupe"
)

type fakeConn struct {
	mu      sync.Mutex
	code    int
	reason  string
	closed  int
	dropped int
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code, c.reason = code, reason
	c.closed++
	return nil
}

func (c *fakeConn) CloseNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
	return nil
}

// stuckConn never finishes the close handshake until it is dropped.
type stuckConn struct {
	dropped chan struct{}
	once    sync.Once
}

func newStuckConn() *stuckConn {
	return &stuckConn{dropped: make(chan struct{})}
}

func (c *stuckConn) Close(int, string) error {
	<-c.dropped
	return nil
}

func (c *stuckConn) CloseNow() error {
	c.once.Do(func() { close(c.dropped) })
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	recent := NewRecentIDs()
	t.Cleanup(recent.Close)
	return NewRegistry(NewIDGenerator(recent), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register(&fakeConn{})
	require.NotNil(t, s)
	assert.Len(t, s.ID, IDLength)
	assert.Equal(t, "web:"+s.ID, s.Key)
	assert.False(t, s.ConnectedAt.IsZero())
	assert.True(t, s.ConnectedAt.Equal(s.LastActivity()))

	got, ok := r.Get(s.ID)
	assert.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		s := r.Register(&fakeConn{})
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
	}
	assert.Equal(t, 500, r.Count())
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	s := r.Register(&fakeConn{})

	r.Unregister(s.ID)
	r.Unregister(s.ID)
	r.Unregister("missing")

	_, ok := r.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Touch(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	s := r.Register(&fakeConn{})
	r.now = func() time.Time { return base.Add(5 * time.Minute) }

	assert.True(t, r.Touch(s.ID))
	assert.True(t, base.Add(5*time.Minute).Equal(s.LastActivity()), "last activity %v", s.LastActivity())
	assert.True(t, base.Equal(s.ConnectedAt))
	assert.False(t, r.Touch("missing"))
}

func TestRegistry_ListOrdered(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		r.now = func() time.Time { return at }
		want = append(want, r.Register(&fakeConn{}).ID)
	}

	var got []string
	for _, s := range r.List() {
		got = append(got, s.ID)
	}
	assert.Equal(t, want, got)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t)
	a, b := &fakeConn{}, &fakeConn{}
	r.Register(a)
	r.Register(b)

	assert.Equal(t, 0, r.CloseAll(context.Background(), 1001, "server shutdown"))

	for _, c := range []*fakeConn{a, b} {
		assert.Equal(t, 1, c.closed)
		assert.Equal(t, 1001, c.code)
		assert.Equal(t, "server shutdown", c.reason)
		assert.Equal(t, 0, c.dropped)
	}
}

func TestRegistry_CloseAllDropsStuckConnections(t *testing.T) {
	r := newTestRegistry(t)
	stuck := []*stuckConn{newStuckConn(), newStuckConn(), newStuckConn()}
	for _, c := range stuck {
		r.Register(c)
	}
	polite := &fakeConn{}
	r.Register(polite)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	unfinished := r.CloseAll(ctx, 1001, "server shutdown")

	assert.Less(t, time.Since(start), time.Second, "closes run concurrently and stop at the deadline")
	assert.Equal(t, 3, unfinished)
	for _, c := range stuck {
		select {
		case <-c.dropped:
		default:
			t.Fatal("stuck connection was not dropped")
		}
	}
	assert.Equal(t, 1, polite.closed)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.Register(&fakeConn{})
			r.Touch(s.ID)
			_ = r.List()
			r.Unregister(s.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestIDGenerator_RejectsRecentIDs(t *testing.T) {
	recent := dedupe.New(time.Minute, 100)
	defer recent.Close()

	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	g := NewIDGenerator(recent)
	g.source = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	assert.Equal(t, "aaaaaaaa", g.Next())
	assert.Equal(t, "bbbbbbbb", g.Next(), "reused id skipped")
}

func TestIDGenerator_Format(t *testing.T) {
	g := NewIDGenerator(nil)
	id := g.Next()
	assert.Len(t, id, IDLength)
	assert.Regexp(t, `^[0-9a-f]{8}$`, id)
}

func TestIDGenerator_Issued(t *testing.T) {
	recent := dedupe.New(time.Minute, 100)
	defer recent.Close()

	g := NewIDGenerator(recent)
	id := g.Next()

	assert.True(t, g.Issued(id))
	assert.False(t, g.Issued("ffffffff"))
	assert.False(t, NewIDGenerator(nil).Issued(id))
}
