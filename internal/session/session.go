// ABOUTME: Session type for one live client connection
// ABOUTME: Tracks id, correlation key, connect time, and last activity

package session

import (
	"sync/atomic"
	"time"
)

// KeyPrefix is prepended to a session id to form its correlation key.
const KeyPrefix = "web:"

// Conn is the subset of a client connection the registry needs.
// Close performs the close handshake; CloseNow drops the connection at once.
type Conn interface {
	Close(code int, reason string) error
	CloseNow() error
}

// Session is one live client connection. Its id is unique among live sessions.
type Session struct {
	ID          string
	Key         string
	ConnectedAt time.Time

	conn         Conn
	lastActivity atomic.Pointer[time.Time]
}

func newSession(id string, conn Conn, now time.Time) *Session {
	s := &Session{
		ID:          id,
		Key:         KeyPrefix + id,
		ConnectedAt: now,
		conn:        conn,
	}
	s.lastActivity.Store(&now)
	return s
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) {
	s.lastActivity.Store(&t)
}

// LastActivity returns the time of the most recent inbound frame.
func (s *Session) LastActivity() time.Time {
	return *s.lastActivity.Load()
}

// Close closes the underlying connection.
func (s *Session) Close(code int, reason string) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(code, reason)
}

// CloseNow drops the underlying connection without a handshake.
func (s *Session) CloseNow() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.CloseNow()
}
