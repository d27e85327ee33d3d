// Package gateway serves the chat WebSocket and REST API.
//
// # Overview
//
// A Gateway owns every piece of per-process state: the session registry, the
// correlation broker, the backend dispatcher, and the push notifier. Nothing
// is global, so several gateways can run side by side in tests.
//
// # Connection Lifecycle
//
//	Connecting -> Authorizing -> Open -> Processing -> Open -> Closing -> Closed
//
// A client connects to /ws/chat?token=<token>. A connection rejected by the
// auth gate is closed with code 4001 "unauthorized". An accepted connection is
// registered and receives:
//
//	{"type": "connected", "session_id": "a1b2c3d4"}
//
// Each message frame produces, in order:
//
//	{"type": "typing", "status": true}
//	{"type": "message", "role": "assistant", "content": "...", "timestamp": "..."}
//	{"type": "typing", "status": false}
//
// or an {"type": "error", "content": "Error: ..."} frame in place of the
// message when the backend fails. {"type": "ping"} is answered with
// {"type": "pong"}. Empty messages are ignored. Frames that are not JSON
// objects are treated as messages whose content is the raw text.
//
// Messages sent while a reply is pending are queued and handled in arrival
// order. A connection with no inbound frame for gateway.idle_timeout is
// closed with 1001 "idle timeout". On close the pending request is cancelled
// and the session is unregistered.
//
// # HTTP API
//
//	GET  /health               liveness
//	GET  /health/ready         readiness (503 while shutting down)
//	GET  /api/status           connections, pending requests, push tokens
//	GET  /api/config           non-secret settings
//	POST /api/push/register    {"token": "ExponentPushToken[...]"}
//	POST /api/push/unregister  {"token": "ExponentPushToken[...]"}
//	GET  /                     embedded chat page
//
// /api endpoints accept a bearer token or a local origin.
//
// # Listeners
//
// The HTTP server listens on server.http_addr, or on the tailnet when
// tailscale is enabled. When server.grpc_addr is set, a gRPC server exposing
// the standard grpc.health.v1 service runs alongside it.
package gateway
