// Package push fans out best-effort notifications to registered devices.
//
// # Tokens
//
// Devices register Expo push tokens (ExponentPushToken[...] or
// ExpoPushToken[...]). The token set lives in memory and is mirrored to a
// store.TokenStore so registrations survive restarts. Unregistering an
// unknown token succeeds.
//
// # Delivery
//
// Notify returns immediately. A background goroutine posts one request per
// token to the relay, concurrently, under a shared timeout:
//
//	POST https://exp.host/--/api/v2/push/send
//	[{"to": "...", "sound": "default", "title": "nanobot", "body": "..."}]
//
// The body is the reply rendered from markdown to plain text and truncated to
// the configured rune limit. Failures are logged and never reach the caller.
// Tokens the relay reports as DeviceNotRegistered are dropped.
package push
