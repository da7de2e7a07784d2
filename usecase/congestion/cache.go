package congestion

import (
	"sync"
	"time"

	"github.com/desain-gratis/congestion/types/entity"
)

type cacheEntry struct {
	area   entity.Area
	seenAt time.Time
}

// StateCache keeps the last observed level of every area.
// A DiffAndUpdate call holds the write lock for the whole snapshot, so a
// reader never sees an area half way through an update.
type StateCache struct {
	lock    *sync.RWMutex
	entries map[string]*cacheEntry
	order   []string // first-seen order
	now     func() time.Time
}

func NewStateCache() *StateCache {
	return &StateCache{
		lock:    &sync.RWMutex{},
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// DiffAndUpdate evaluates the alert policy for every area of snapshot against
// its previous level and then records the new level. Areas appear in the
// result in snapshot order, without the forecast field.
func (c *StateCache) DiffAndUpdate(snapshot entity.Snapshot) entity.AlertSet {
	alerts := make(entity.AlertSet, 0)

	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	for _, area := range snapshot {
		prev, seen := c.entries[area.Name]

		var previous entity.Level
		if seen {
			previous = prev.area.Level
		}

		if entity.ShouldAlert(previous, seen, area.Level) {
			alerts = append(alerts, area.WithoutForecast())
		}

		c.put(area, now)
	}

	return alerts
}

// CurrentSnapshot returns every recorded area in first-seen order
func (c *StateCache) CurrentSnapshot() entity.Snapshot {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.snapshot()
}

// withSnapshot runs fn on the current snapshot while holding the read lock.
// A DiffAndUpdate started meanwhile waits for fn to return; fn must not block.
func (c *StateCache) withSnapshot(fn func(snapshot entity.Snapshot) error) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return fn(c.snapshot())
}

// snapshot requires the lock
func (c *StateCache) snapshot() entity.Snapshot {
	result := make(entity.Snapshot, 0, len(c.order))
	for _, name := range c.order {
		result = append(result, c.entries[name].area)
	}

	return result
}

// Restore seeds the cache from persisted state without evaluating alerts
func (c *StateCache) Restore(snapshot entity.Snapshot) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	for _, area := range snapshot {
		c.put(area, now)
	}
}

// Prune drops the areas not observed since cutoff and returns their names
func (c *StateCache) Prune(cutoff time.Time) []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	var pruned []string
	order := c.order[:0]
	for _, name := range c.order {
		if c.entries[name].seenAt.Before(cutoff) {
			delete(c.entries, name)
			pruned = append(pruned, name)
			continue
		}
		order = append(order, name)
	}
	c.order = order

	return pruned
}

func (c *StateCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

// put requires the write lock
func (c *StateCache) put(area entity.Area, seenAt time.Time) {
	e, ok := c.entries[area.Name]
	if !ok {
		c.entries[area.Name] = &cacheEntry{area: area, seenAt: seenAt}
		c.order = append(c.order, area.Name)
		return
	}

	e.area = area
	e.seenAt = seenAt
}
