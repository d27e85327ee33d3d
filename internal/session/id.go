// ABOUTME: Short session id generator backed by uuid v4
// ABOUTME: Rejects ids issued within the reuse window via the dedupe cache

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/webchat-gateway/internal/dedupe"
)

const (
	// IDLength is the number of characters kept from the uuid.
	IDLength = 8

	// ReuseWindow is how long an issued id stays reserved.
	ReuseWindow = 10 * time.Minute

	recentIDLimit = 100_000
)

// NewRecentIDs creates the reservation cache used by NewIDGenerator.
func NewRecentIDs() *dedupe.Cache {
	return dedupe.New(ReuseWindow, recentIDLimit)
}

// IDGenerator issues short session ids.
type IDGenerator struct {
	recent *dedupe.Cache
	source func() string
}

// NewIDGenerator creates a generator that refuses to reissue an id
// within the cache's window.
func NewIDGenerator(recent *dedupe.Cache) *IDGenerator {
	return &IDGenerator{
		recent: recent,
		source: func() string { return uuid.NewString()[:IDLength] },
	}
}

// Next returns an id not issued within the reuse window.
func (g *IDGenerator) Next() string {
	for {
		id := g.source()
		if g.recent == nil || !g.recent.CheckAndMark(id) {
			return id
		}
	}
}

// Issued reports whether id was handed out within the reuse window.
func (g *IDGenerator) Issued(id string) bool {
	return g.recent != nil && g.recent.Contains(id)
}
