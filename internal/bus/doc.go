// Package bus carries messages between the gateway and an agent that
// answers them.
//
// The gateway publishes InboundMessage values and subscribes to
// OutboundMessage replies. The agent consumes inbound messages and publishes
// replies addressed by ChatID, which is the gateway's session id.
//
// Two drivers are provided:
//
//   - Memory: in-process, for single-binary deployments and tests.
//   - Redis: inbound messages go through the list <prefix>inbound
//     (RPUSH/BLPOP, each message consumed once) and replies through the
//     pub/sub channel <prefix>outbound (every gateway subscriber sees them).
//
// Payloads on Redis are JSON.
package bus
