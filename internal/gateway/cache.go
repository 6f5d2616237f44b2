package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// responseCache is a small in-process TTL cache for completions. Entries are
// keyed by (model, prompts, temperature rounded to 0.1); callers must not
// rely on hits or misses.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	content  string
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(model, systemPrompt, userPrompt string, temperature float64) string {
	rounded := math.Round(temperature*10) / 10
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%.1f", model, systemPrompt, userPrompt, rounded)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.content, true
}

func (c *responseCache) put(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map from growing unbounded.
	if len(c.entries) > 1024 {
		for k, e := range c.entries {
			if time.Since(e.storedAt) > c.ttl {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{content: content, storedAt: time.Now()}
}
