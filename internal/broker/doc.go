// Package broker correlates requests sent to an asynchronous backend with
// the replies that come back for them.
//
// A caller runs Await with the id of its session and a publish function.
// Await registers a pending slot, publishes, and blocks until one of:
//
//   - a reply arrives through Settle (the reply text is returned)
//   - the timeout elapses (FallbackTimeout is returned with a nil error)
//   - Cancel is called for the id, e.g. on disconnect (ErrCancelled)
//   - the caller's context ends (ctx.Err())
//
// At most one slot is pending per id. Settlement is exactly once: a late
// reply after a timeout or cancellation is dropped.
package broker
