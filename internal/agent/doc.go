// Package agent contains a small echo agent.
//
// It answers every message with a markdown-formatted echo. With
// backend.mode "echo" the gateway calls it in-process through Responder.
// With a bus backend, Serve runs it as an external consumer; cmd/fake-agent
// does this against Redis.
package agent
