// ABOUTME: JSON frames exchanged on the chat WebSocket
// ABOUTME: Lenient inbound parsing and one struct per outbound frame type

package gateway

import (
	"encoding/json"
	"time"
)

// Frame type tags.
const (
	frameMessage   = "message"
	framePing      = "ping"
	framePong      = "pong"
	frameConnected = "connected"
	frameTyping    = "typing"
	frameError     = "error"
)

const roleAssistant = "assistant"

// inboundFrame is a client frame. Anything that does not decode as an
// object with string fields is treated as a message whose content is the raw text.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func parseInbound(data []byte) inboundFrame {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{Type: frameMessage, Content: string(data)}
	}
	if f.Type != framePing {
		f.Type = frameMessage
	}
	return f
}

type connectedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type pongFrame struct {
	Type string `json:"type"`
}

type typingFrame struct {
	Type   string `json:"type"`
	Status bool   `json:"status"`
}

type messageFrame struct {
	Type      string `json:"type"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newConnectedFrame(sessionID string) connectedFrame {
	return connectedFrame{Type: frameConnected, SessionID: sessionID}
}

func newTypingFrame(on bool) typingFrame {
	return typingFrame{Type: frameTyping, Status: on}
}

func newMessageFrame(content string, at time.Time) messageFrame {
	return messageFrame{
		Type:      frameMessage,
		Role:      roleAssistant,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

func newErrorFrame(err error) errorFrame {
	return errorFrame{Type: frameError, Content: "Error: " + err.Error()}
}
