// Package session tracks live client connections.
//
// Each connection gets a Session with a short id (the first eight characters
// of a random uuid) and a correlation key of the form "web:<id>". Ids are
// reserved in a dedupe.Cache for a reuse window so that a reply addressed to a
// closed session cannot reach a new session that drew the same id.
package session
