// ABOUTME: /ws/chat connection handler: auth, session lifecycle, idle supervision
// ABOUTME: One reader goroutine feeds frames to a loop that dispatches them in order

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/webchat-gateway/internal/auth"
	"github.com/2389/webchat-gateway/internal/broker"
	"github.com/2389/webchat-gateway/internal/session"
)

const (
	// StatusUnauthorized closes connections rejected by the auth gate.
	StatusUnauthorized websocket.StatusCode = 4001

	maxFrameBytes  = 1 << 20
	frameQueueSize = 64
	writeTimeout   = 10 * time.Second
)

var errConnClosed = errors.New("connection closed")

// clientConn serializes writes and makes Close idempotent.
// Writes after Close return errConnClosed. closed is atomic so Close and
// CloseNow never wait behind a slow write.
type clientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex // serializes writes
	closed atomic.Bool
}

func (c *clientConn) write(ctx context.Context, v any) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errConnClosed
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// Close implements session.Conn. It waits for the peer's close frame.
func (c *clientConn) Close(code int, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.Close(websocket.StatusCode(code), reason)
}

// CloseNow implements session.Conn. It also interrupts a Close that is
// still waiting on the peer.
func (c *clientConn) CloseNow() error {
	c.closed.Store(true)
	return c.ws.CloseNow()
}

func (c *clientConn) isClosed() bool {
	return c.closed.Load()
}

var _ session.Conn = (*clientConn)(nil)

// handleChat runs one client connection from accept to close.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if !g.trackHandler() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer g.handlers.Done()

	decision, _ := g.gate.AuthorizeRequest(r, auth.TransportStream)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.Gateway.AllowedOrigins,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	if decision != auth.Allow {
		_ = ws.Close(StatusUnauthorized, "unauthorized")
		return
	}

	conn := &clientConn{ws: ws}
	sess := g.sessions.Register(conn)
	logger := g.logger.With("session_id", sess.ID)

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer func() {
		cancel()
		g.broker.Cancel(sess.ID)
		g.sessions.Unregister(sess.ID)
		_ = conn.Close(int(websocket.StatusNormalClosure), "")
	}()

	if err := conn.write(ctx, newConnectedFrame(sess.ID)); err != nil {
		logger.Info("connection closed before welcome", "error", err)
		return
	}

	frames := make(chan []byte, frameQueueSize)
	go g.readFrames(ctx, cancel, conn, sess, frames, logger)

	g.serveFrames(ctx, conn, sess, frames, logger)
}

// readFrames reads until the connection fails, then cancels the session context
// so a pending request is abandoned.
func (g *Gateway) readFrames(ctx context.Context, cancel context.CancelFunc, conn *clientConn, sess *session.Session, frames chan<- []byte, logger *slog.Logger) {
	defer cancel()
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil || conn.isClosed():
			case websocket.CloseStatus(err) != -1:
				logger.Info("client disconnected", "code", websocket.CloseStatus(err))
			default:
				logger.Info("connection lost", "error", err)
			}
			return
		}
		g.sessions.Touch(sess.ID)

		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// serveFrames processes frames in arrival order and enforces the idle timeout.
// The idle deadline restarts after each frame is handled.
func (g *Gateway) serveFrames(ctx context.Context, conn *clientConn, sess *session.Session, frames <-chan []byte, logger *slog.Logger) {
	idleTimeout := g.config.Gateway.IdleTimeout
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			logger.Info("idle timeout", "idle", idleTimeout, "last_activity", sess.LastActivity())
			_ = conn.Close(int(websocket.StatusGoingAway), "idle timeout")
			return
		case data := <-frames:
			idle.Stop()
			g.handleFrame(ctx, conn, sess, data, logger)
			idle.Reset(idleTimeout)
		}
	}
}

func (g *Gateway) handleFrame(ctx context.Context, conn *clientConn, sess *session.Session, data []byte, logger *slog.Logger) {
	in := parseInbound(data)
	if in.Type == framePing {
		_ = conn.write(ctx, pongFrame{Type: framePong})
		return
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return
	}
	g.respond(ctx, conn, sess, content, logger)
}

// respond dispatches one message and writes the reply, bracketed by typing frames.
func (g *Gateway) respond(ctx context.Context, conn *clientConn, sess *session.Session, content string, logger *slog.Logger) {
	_ = conn.write(ctx, newTypingFrame(true))
	defer func() { _ = conn.write(ctx, newTypingFrame(false)) }()

	start := time.Now()
	text, err := g.dispatcher.Dispatch(ctx, content, sess)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, broker.ErrCancelled) {
			logger.Info("request abandoned", "error", err)
			return
		}
		logger.Error("backend failure", "error", err)
		_ = conn.write(ctx, newErrorFrame(err))
		return
	}

	if err := conn.write(ctx, newMessageFrame(text, time.Now())); err != nil {
		logger.Info("reply not delivered", "error", err)
		return
	}
	logger.Debug("reply sent", "elapsed", time.Since(start), "length", len(text))

	if g.notifier != nil && text != broker.FallbackTimeout {
		g.notifier.Notify(g.config.Push.Title, text)
	}
}
