// ABOUTME: Tests for the Auth Gate decision order and token rotation
// ABOUTME: Covers disabled auth, token match, local exemption, and atomic policy swaps

package auth

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_Authorize(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		origin     string
		credential string
		transport  Transport
		want       Decision
	}{
		{"disabled remote no token", Policy{Enabled: false, Token: "secret"}, "203.0.113.5:5555", "", TransportStream, Allow},
		{"disabled local", Policy{Enabled: false}, "127.0.0.1:1234", "", TransportRequest, Allow},
		{"enabled remote correct token", Policy{Enabled: true, Token: "secret"}, "203.0.113.5:5555", "secret", TransportStream, Allow},
		{"enabled remote wrong token", Policy{Enabled: true, Token: "secret"}, "203.0.113.5:5555", "nope", TransportStream, Deny},
		{"enabled remote missing token", Policy{Enabled: true, Token: "secret"}, "203.0.113.5:5555", "", TransportRequest, Deny},
		{"enabled local wrong token", Policy{Enabled: true, Token: "secret"}, "127.0.0.1:40000", "nope", TransportStream, Allow},
		{"enabled ipv6 loopback", Policy{Enabled: true, Token: "secret"}, "[::1]:40000", "", TransportRequest, Allow},
		{"enabled localhost name", Policy{Enabled: true, Token: "secret"}, "localhost", "", TransportStream, Allow},
		{"empty expected token never matches", Policy{Enabled: true, Token: ""}, "203.0.113.5:5555", "", TransportStream, Deny},
		{"token prefix is not a match", Policy{Enabled: true, Token: "secret"}, "203.0.113.5:5555", "secre", TransportStream, Deny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.policy, nil, testLogger())
			assert.Equal(t, tt.want, g.Authorize(tt.origin, tt.credential, tt.transport))
		})
	}
}

func TestGate_DisabledWarnsForRemote(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	g := NewGate(Policy{Enabled: false}, nil, logger)

	assert.Equal(t, Allow, g.Authorize("198.51.100.7:80", "", TransportStream))
	assert.Contains(t, buf.String(), "auth disabled")

	buf.Reset()
	assert.Equal(t, Allow, g.Authorize("127.0.0.1:80", "", TransportStream))
	assert.Empty(t, buf.String())
}

func TestGate_DenyLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	g := NewGate(Policy{Enabled: true, Token: "secret"}, nil, logger)

	assert.Equal(t, Deny, g.Authorize("198.51.100.7:80", "wrong", TransportRequest))
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "unauthorized")
	assert.NotContains(t, out, "wrong", "credential must not be logged")
}

func TestGate_CustomTrustFunc(t *testing.T) {
	trustNone := func(string) bool { return false }
	g := NewGate(Policy{Enabled: true, Token: "secret"}, trustNone, testLogger())

	assert.Equal(t, Deny, g.Authorize("127.0.0.1:1", "", TransportStream))
	assert.Equal(t, Allow, g.Authorize("127.0.0.1:1", "secret", TransportStream))
}

func TestGate_SetToken(t *testing.T) {
	remote := func(string) bool { return false }
	g := NewGate(Policy{Enabled: true, Token: "old"}, remote, testLogger())

	require.Equal(t, Allow, g.Authorize("x", "old", TransportStream))

	g.SetToken("new")
	assert.Equal(t, Deny, g.Authorize("x", "old", TransportStream))
	assert.Equal(t, Allow, g.Authorize("x", "new", TransportStream))
	assert.True(t, g.Policy().Enabled, "rotation keeps the enabled flag")
}

func TestGate_SetPolicy(t *testing.T) {
	remote := func(string) bool { return false }
	g := NewGate(Policy{Enabled: true, Token: "a"}, remote, testLogger())

	g.SetPolicy(Policy{Enabled: false})
	assert.Equal(t, Allow, g.Authorize("x", "", TransportRequest))
	assert.Equal(t, Policy{Enabled: false}, g.Policy())
}

func TestGate_ConcurrentRotation(t *testing.T) {
	remote := func(string) bool { return false }
	g := NewGate(Policy{Enabled: true, Token: "t0"}, remote, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g.SetToken(strings.Repeat("t", i+1))
		}(i)
		go func() {
			defer wg.Done()
			_ = g.Authorize("x", "t", TransportStream)
		}()
	}
	wg.Wait()

	p := g.Policy()
	assert.True(t, p.Enabled)
	assert.NotEmpty(t, p.Token)
}

func TestDecisionAndTransportStrings(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny", Deny.String())
	assert.Equal(t, "request", TransportRequest.String())
	assert.Equal(t, "stream", TransportStream.String())
	assert.Equal(t, "unknown", Transport(9).String())
}
