// ABOUTME: Registry of live sessions keyed by session id
// ABOUTME: Register/Unregister/Touch/Get/Count/List guarded by an RWMutex

package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds the live sessions of one gateway.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ids      *IDGenerator
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates an empty registry that draws ids from ids.
func NewRegistry(ids *IDGenerator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ids:      ids,
		now:      time.Now,
		logger:   logger.With("component", "sessions"),
	}
}

// Register creates a session for conn under a fresh id and stores it.
func (r *Registry) Register(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = r.ids.Next()
		if _, taken := r.sessions[id]; !taken {
			break
		}
	}

	s := newSession(id, conn, r.now())
	r.sessions[id] = s
	r.logger.Info("session registered", "session_id", id, "sessions", len(r.sessions))
	return s
}

// Unregister removes a session. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.logger.Info("session unregistered", "session_id", id, "sessions", len(r.sessions))
}

// Touch records activity on a session. Returns false for unknown ids.
func (r *Registry) Touch(id string) bool {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.Touch(r.now())
	return true
}

// Get returns the session with id, if live.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of live sessions ordered by connect time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// CloseAll closes every live session concurrently with code and reason.
// When ctx ends before every close handshake finishes, all listed sessions are
// dropped with CloseNow. Sessions stay registered; their handlers unregister
// them on exit. Returns the number of handshakes that had not finished.
func (r *Registry) CloseAll(ctx context.Context, code int, reason string) int {
	sessions := r.List()
	if len(sessions) == 0 {
		return 0
	}

	finished := make([]atomic.Bool, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Close(code, reason); err != nil {
				r.logger.Debug("closing session", "session_id", s.ID, "error", err)
			}
			finished[i].Store(true)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-ctx.Done():
	}

	unfinished := 0
	for i, s := range sessions {
		if !finished[i].Load() {
			unfinished++
		}
		_ = s.CloseNow()
	}
	r.logger.Warn("close handshake timed out, dropped connections", "unfinished", unfinished, "sessions", len(sessions))
	return unfinished
}
