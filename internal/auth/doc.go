// Package auth implements the gateway's connection and request gate.
//
// # Policy
//
// A single process-wide Policy holds an enabled flag and a shared-secret
// token. Callers present the token either as a bearer header (request
// transport) or as a "token" query parameter (stream transport):
//
//	GET /api/status          Authorization: Bearer <token>
//	GET /ws/chat?token=<token>
//
// # Decision Order
//
//  1. Auth disabled: every caller is allowed. Non-local callers are logged at warn.
//  2. The credential equals the expected token: allowed.
//  3. Otherwise only local origins (loopback addresses and localhost names) are allowed.
//
// An empty expected token never matches, so enabling auth without a token
// restricts access to local origins.
//
// # Rotation
//
// The policy is stored behind an atomic pointer. SetToken and SetPolicy
// replace it wholesale and only affect calls made afterwards. WatchTokenFile
// rotates the token whenever the configured token file is rewritten.
// Established connections are never re-checked.
package auth
