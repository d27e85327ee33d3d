// ABOUTME: Auth Gate deciding whether a request or stream connection may proceed
// ABOUTME: Shared-secret token policy with a local-origin exemption and atomic rotation

package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrUnauthorized is returned to callers that need an error for a Deny decision.
var ErrUnauthorized = errors.New("unauthorized")

// Transport identifies how a credential was presented.
type Transport int

const (
	// TransportRequest is a request/response call carrying a bearer token.
	TransportRequest Transport = iota
	// TransportStream is a long-lived streaming connection carrying a query token.
	TransportStream
)

func (t Transport) String() string {
	switch t {
	case TransportRequest:
		return "request"
	case TransportStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Authorize.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Policy is the process-wide token policy. It is replaced wholesale on rotation.
type Policy struct {
	Enabled bool
	Token   string
}

// TrustFunc reports whether an origin (usually a remote address) is trusted.
type TrustFunc func(origin string) bool

// Gate applies the token policy to connection attempts and requests.
// Policies are swapped atomically; a rotation affects only calls made after it.
type Gate struct {
	policy atomic.Pointer[Policy]
	trust  TrustFunc
	logger *slog.Logger
}

// NewGate creates a Gate. A nil trust func defaults to IsLocal.
func NewGate(policy Policy, trust TrustFunc, logger *slog.Logger) *Gate {
	if trust == nil {
		trust = IsLocal
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		trust:  trust,
		logger: logger.With("component", "auth"),
	}
	g.policy.Store(&policy)
	return g
}

// Policy returns a copy of the current policy.
func (g *Gate) Policy() Policy {
	return *g.policy.Load()
}

// SetPolicy replaces the policy.
func (g *Gate) SetPolicy(p Policy) {
	g.policy.Store(&p)
	g.logger.Info("auth policy replaced", "enabled", p.Enabled)
}

// SetToken replaces the expected token, keeping the enabled flag.
func (g *Gate) SetToken(token string) {
	for {
		cur := g.policy.Load()
		next := &Policy{Enabled: cur.Enabled, Token: token}
		if g.policy.CompareAndSwap(cur, next) {
			g.logger.Info("auth token rotated")
			return
		}
	}
}

// Authorize decides whether origin may proceed with the supplied credential.
//
// Precedence:
//  1. auth disabled: allow (warn when the origin is not local)
//  2. credential equals the expected token: allow
//  3. otherwise allow only local origins
func (g *Gate) Authorize(origin, credential string, transport Transport) Decision {
	p := g.policy.Load()

	if !p.Enabled {
		if !g.trust(origin) {
			g.logger.Warn("auth disabled, allowing non-local origin",
				"origin", origin,
				"transport", transport.String(),
			)
		}
		return Allow
	}

	if tokenMatches(credential, p.Token) {
		return Allow
	}

	if g.trust(origin) {
		g.logger.Debug("token mismatch from local origin, allowing",
			"origin", origin,
			"transport", transport.String(),
		)
		return Allow
	}

	g.logger.Warn("unauthorized",
		"origin", origin,
		"transport", transport.String(),
		"credential_present", credential != "",
	)
	return Deny
}

// tokenMatches compares in constant time. An empty expected token never matches.
func tokenMatches(supplied, expected string) bool {
	if expected == "" || len(supplied) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) == 1
}
