package wapps

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// IdentityCache is an in-memory, per-site cache of identity settings with
// TTL. Identity settings are read on every page render and change rarely.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[int64]identityEntry
	ttl     time.Duration
	load    func(siteID int64) (IdentitySettings, error)
	group   singleflight.Group

	// gens counts invalidations per site and epoch counts InvalidateAll
	// calls. A load only stores its result if neither moved while it ran.
	gens  map[int64]uint64
	epoch uint64
}

type identityEntry struct {
	identity IdentitySettings
	fetched  time.Time
}

// NewIdentityCache creates an IdentityCache backed by the given Store.
func NewIdentityCache(s *Store, ttl time.Duration) *IdentityCache {
	return &IdentityCache{
		load:    s.IdentityFor,
		ttl:     ttl,
		entries: make(map[int64]identityEntry),
		gens:    make(map[int64]uint64),
	}
}

// Get returns the identity settings of a site, loading them from the store
// when missing or expired. Concurrent misses for one site share a load.
func (c *IdentityCache) Get(ctx context.Context, siteID int64) (IdentitySettings, error) {
	c.mu.RLock()
	e, ok := c.entries[siteID]
	c.mu.RUnlock()
	if ok && time.Since(e.fetched) < c.ttl {
		return e.identity, nil
	}

	ch := c.group.DoChan(strconv.FormatInt(siteID, 10), func() (interface{}, error) {
		c.mu.RLock()
		gen, epoch := c.gens[siteID], c.epoch
		c.mu.RUnlock()

		identity, err := c.load(siteID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[siteID] == gen && c.epoch == epoch {
			c.entries[siteID] = identityEntry{identity: identity, fetched: time.Now()}
		}
		c.mu.Unlock()
		return identity, nil
	})
	select {
	case <-ctx.Done():
		return IdentitySettings{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return IdentitySettings{}, res.Err
		}
		return res.Val.(IdentitySettings), nil
	}
}

// Invalidate drops the cached settings of a site so the next read reloads.
func (c *IdentityCache) Invalidate(siteID int64) {
	c.mu.Lock()
	delete(c.entries, siteID)
	c.gens[siteID]++
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(siteID, 10))
}

// InvalidateAll drops every cached site.
func (c *IdentityCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[int64]identityEntry)
	c.epoch++
	c.mu.Unlock()
}
