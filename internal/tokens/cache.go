// Package tokens keeps the API tokens in memory and refreshes them from the
// token repository.
package tokens

import "sync"

// Scope lists the route groups a token may call. An empty scope allows all.
type Scope map[string]bool

// Entry is one API token.
type Entry struct {
	RateLimit int
	Scope     Scope
}

// Allows reports whether the entry may call routes of the given scope.
func (e Entry) Allows(scope string) bool {
	return len(e.Scope) == 0 || e.Scope[scope]
}

// Cache is a concurrency safe token table. It is not ready until the first
// successful Replace.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache returns an empty, not yet ready cache.
func NewCache() *Cache { return &Cache{} }

// Replace swaps the whole table.
func (c *Cache) Replace(m map[string]Entry) {
	entries := make(map[string]Entry, len(m))
	for k, v := range m {
		entries[k] = v
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

// Ready returns true if the cache has been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Lookup returns the entry for token.
func (c *Cache) Lookup(token string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[token]
	return e, ok
}

// Valid checks whether token is known.
func (c *Cache) Valid(token string) bool {
	_, ok := c.Lookup(token)
	return ok
}

// RateLimit returns the configured limit for token. Unknown tokens and tokens
// without a limit return 0, which disables per-token limiting.
func (c *Cache) RateLimit(token string) int {
	e, _ := c.Lookup(token)
	return e.RateLimit
}

// Len is the number of known tokens.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
