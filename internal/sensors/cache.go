package sensors

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LabelTTL is how long a vendor label lookup stays valid.
const LabelTTL = time.Hour

const (
	cacheKeyRAM  = "ram"
	cacheKeyDisk = "disk"
)

type cacheEntry struct {
	value  string
	stored time.Time
}

// LabelCache holds slow-changing labels keyed by sensor category. Empty
// results are never stored, so a failed lookup is retried on the next call.
type LabelCache struct {
	clock   clockwork.Clock
	entries map[string]cacheEntry
	mu      sync.Mutex
}

func NewLabelCache(clock clockwork.Clock) *LabelCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &LabelCache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// GetOrCompute returns the cached value for key if it is younger than ttl,
// otherwise calls compute and caches a non-empty result.
func (c *LabelCache) GetOrCompute(key string, ttl time.Duration, compute func() string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.clock.Since(e.stored) < ttl {
		return e.value
	}

	v := compute()
	if v == "" {
		delete(c.entries, key)
		return ""
	}

	c.entries[key] = cacheEntry{value: v, stored: c.clock.Now()}

	return v
}
