// Package cache holds a short-lived in-memory store of AI answers to
// non-personalized rate/price queries, so repeated lookups inside the TTL
// window skip the AI call entirely. Nothing here is persisted.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// TTL after which an entry is treated as a miss.
	TTL = 5 * time.Minute
	// SweepThreshold is the store size above which Set scans for and drops
	// expired entries.
	SweepThreshold = 100
)

// Only rate/price/exchange lookups are cacheable; anything personalized or
// transactional must always reach the AI.
var (
	cacheableIntent = regexp.MustCompile(`\b(rate|rates|exchange|price|prices|cost|igiciro)\b`)
	personalIntent  = regexp.MustCompile(`\b(my|me|i|send|transfer|ohereza|kohereza|pay)\b`)
)

type entry struct {
	response  string
	createdAt time.Time
}

type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func New() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock is used by tests to control entry age.
func NewWithClock(now func() time.Time) *ResponseCache {
	c := New()
	c.now = now
	return c
}

// Key returns the cache key for text, or "" when the query is not cacheable.
func Key(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return ""
	}
	if !cacheableIntent.MatchString(normalized) {
		return ""
	}
	if personalIntent.MatchString(normalized) {
		return ""
	}
	return "rate:" + normalized
}

// Get returns the cached response for key, or "" on a miss. An expired entry
// behaves as a miss; it is left for the next Set sweep to collect.
func (c *ResponseCache) Get(key string) string {
	if key == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return ""
	}
	if c.now().Sub(e.createdAt) >= TTL {
		return ""
	}
	return e.response
}

// Set stores response under key, sweeping all expired entries once the store
// grows past SweepThreshold.
func (c *ResponseCache) Set(key, response string) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{response: response, createdAt: c.now()}

	if len(c.entries) > SweepThreshold {
		cutoff := c.now().Add(-TTL)
		for k, e := range c.entries {
			if !e.createdAt.After(cutoff) {
				delete(c.entries, k)
			}
		}
	}
}

// Len reports the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
