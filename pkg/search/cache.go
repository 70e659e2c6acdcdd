package search

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iop-labs/profiled/internal/protocol/iop"
)

// resultCache holds the result sets behind continuation tokens. Entries
// expire after the configured TTL; expired entries are swept lazily on
// access so no background goroutine is needed.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	results   []*iop.SearchResult
	expiresAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// put stores a result set and returns its opaque continuation token.
func (c *resultCache) put(results []*iop.SearchResult) []byte {
	token := uuid.New()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[string(token[:])] = &cacheEntry{
		results:   results,
		expiresAt: time.Now().Add(c.ttl),
	}
	return token[:]
}

// get returns the result set behind a token, renewing its TTL.
func (c *resultCache) get(token []byte) ([]*iop.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[string(token)]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, string(token))
		return nil, false
	}
	entry.expiresAt = time.Now().Add(c.ttl)
	return entry.results, true
}

// sweepLocked drops expired entries. Caller holds the mutex.
func (c *resultCache) sweepLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
