// Package dispatch delivers a user message to the backend agent and returns
// its reply.
//
// In direct mode a Responder is called in-process; its errors and panics
// surface as ErrBackendFailure. In bus mode the message is published as a
// bus.InboundMessage keyed by session id and the reply is matched through the
// broker when OnOutbound sees it. A missing reply becomes
// broker.FallbackTimeout after RequestTimeout.
package dispatch
