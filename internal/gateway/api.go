// ABOUTME: REST handlers for health, status, safe config, and push token registration
// ABOUTME: JSON responses; /api endpoints sit behind the auth middleware

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/webchat-gateway/internal/auth"
	"github.com/2389/webchat-gateway/internal/config"
	"github.com/2389/webchat-gateway/internal/push"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 4 << 10

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Connections     int    `json:"connections"`
	PendingRequests int    `json:"pending_requests"`
	PushTokens      int    `json:"push_tokens"`
	Backend         string `json:"backend"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// ConfigResponse is the JSON response for GET /api/config. It carries no secrets.
type ConfigResponse struct {
	Channel        string `json:"channel"`
	IdleTimeout    string `json:"idle_timeout"`
	RequestTimeout string `json:"request_timeout"`
	Backend        string `json:"backend"`
	BusDriver      string `json:"bus_driver,omitempty"`
	AuthEnabled    bool   `json:"auth_enabled"`
	PushEnabled    bool   `json:"push_enabled"`
}

// PushTokenRequest is the JSON body for the push register/unregister endpoints.
type PushTokenRequest struct {
	Token string `json:"token"`
}

// PushTokenResponse is returned after a successful register/unregister.
type PushTokenResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 unless the gateway is shutting down.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Count())
}

func (g *Gateway) backendName() string {
	if g.dispatcher.Responder != nil {
		return config.BackendEcho
	}
	return config.BackendBus
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:          "running",
		Version:         Version,
		Connections:     g.sessions.Count(),
		PendingRequests: g.broker.Pending(),
		Backend:         g.backendName(),
		UptimeSeconds:   int64(time.Since(g.startedAt).Seconds()),
	}
	if g.notifier != nil {
		resp.PushTokens = g.notifier.Count()
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := ConfigResponse{
		Channel:        g.config.Gateway.Channel,
		IdleTimeout:    g.config.Gateway.IdleTimeout.String(),
		RequestTimeout: g.config.Gateway.RequestTimeout.String(),
		Backend:        g.backendName(),
		AuthEnabled:    g.gate.Policy().Enabled,
		PushEnabled:    g.notifier != nil,
	}
	if g.dispatcher.Responder == nil {
		resp.BusDriver = g.config.Bus.Driver
	}
	g.sendJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handlePushRegister(w http.ResponseWriter, r *http.Request) {
	if g.notifier == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "push notifications are disabled")
		return
	}
	g.handlePushToken(w, r, "registered", g.notifier.Register)
}

func (g *Gateway) handlePushUnregister(w http.ResponseWriter, r *http.Request) {
	if g.notifier == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "push notifications are disabled")
		return
	}
	g.handlePushToken(w, r, "unregistered", g.notifier.Unregister)
}

func (g *Gateway) handlePushToken(w http.ResponseWriter, r *http.Request, status string, apply func(context.Context, string) error) {
	var req PushTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := apply(r.Context(), req.Token); err != nil {
		if errors.Is(err, push.ErrInvalidToken) {
			g.sendJSONError(w, http.StatusBadRequest, "invalid push token")
			return
		}
		g.logger.Error("push token update failed", "status", status, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to update push token")
		return
	}

	count := g.notifier.Count()
	g.logger.Info("push token "+status, "caller", auth.FromContext(r.Context()), "count", count)
	g.sendJSON(w, http.StatusOK, PushTokenResponse{Status: status, Count: count})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
