package syncer

import (
	"sync"
	"time"

	"github.com/chmouel/treesync/internal/models"
)

// DefaultCacheTTL is how long a status snapshot is served without re-running git.
const DefaultCacheTTL = 2 * time.Second

type diffKey struct {
	path   string
	staged bool
}

// statusCache holds the latest status snapshot and the per-file diff memo.
// Every invalidation bumps the generation; writes tagged with an older
// generation are refused so an in-flight fetch cannot resurrect stale data.
type statusCache struct {
	mu sync.RWMutex

	entries    []models.StatusEntry
	capturedAt time.Time
	valid      bool
	generation uint64

	// last successful snapshot, kept across invalidations
	lastGood   []models.StatusEntry
	lastGoodAt time.Time

	diffs map[diffKey]*models.FileDiff
	now   func() time.Time
}

func newStatusCache(now func() time.Time) *statusCache {
	if now == nil {
		now = time.Now
	}
	return &statusCache{
		diffs: make(map[diffKey]*models.FileDiff),
		now:   now,
	}
}

// Get returns the cached entries when they are younger than ttl.
func (c *statusCache) Get(ttl time.Duration) ([]models.StatusEntry, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid || c.now().Sub(c.capturedAt) >= ttl {
		return nil, time.Time{}, false
	}
	return cloneEntries(c.entries), c.capturedAt, true
}

func (c *statusCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Set stores entries captured under generation gen. It reports false, and
// stores nothing, when the cache was invalidated since gen was read.
func (c *statusCache) Set(gen uint64, entries []models.StatusEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	now := c.now()
	c.entries = cloneEntries(entries)
	c.capturedAt = now
	c.valid = true
	c.lastGood = c.entries
	c.lastGoodAt = now
	return true
}

// Invalidate drops the snapshot and the diff memo. The last good snapshot stays
// available through LastKnown.
func (c *statusCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.entries = nil
	c.generation++
	c.diffs = make(map[diffKey]*models.FileDiff)
}

func (c *statusCache) LastKnown() ([]models.StatusEntry, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneEntries(c.lastGood), c.lastGoodAt
}

// Diff returns a memoized diff. A nil diff with ok set means "no changes".
func (c *statusCache) Diff(key diffKey) (*models.FileDiff, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.diffs[key]
	return d, ok
}

func (c *statusCache) SetDiff(gen uint64, key diffKey, diff *models.FileDiff) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.diffs[key] = diff
	return true
}

func cloneEntries(entries []models.StatusEntry) []models.StatusEntry {
	if entries == nil {
		return nil
	}
	out := make([]models.StatusEntry, len(entries))
	copy(out, entries)
	return out
}
