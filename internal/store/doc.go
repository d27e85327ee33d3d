// Package store persists push notification tokens.
//
// # TokenStore
//
// TokenStore is implemented by:
//
//   - SQLiteStore: modernc.org/sqlite (pure Go), WAL mode, schema created on open
//   - MemoryStore: map-backed, used when push.database is empty and in tests
//
// # Schema
//
//	push_tokens(token TEXT PRIMARY KEY, created_at TEXT NOT NULL)
//
// Timestamps are stored as RFC 3339 strings in UTC.
package store
