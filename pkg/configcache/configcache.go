// Package configcache deduplicates BuildRequestConfigurations and assigns
// them the monotonically increasing identity spec.md §3 requires, plus the
// disk cache-swap path for configurations marked IsCacheable.
package configcache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/buildforge/manager/pkg/model"
)

// Cache is the in-memory config cache: a mapping configurationId →
// Configuration plus a secondary lookup by semantic equality, used to
// assign ids to incoming requests (spec.md §4.3).
type Cache struct {
	mu     sync.RWMutex
	byID   map[model.ConfigID]*model.Configuration
	byKey  map[string]model.ConfigID
	nextID int32
	disk   *DiskStore

	// resolve collapses concurrent GetOrAssign calls racing to resolve the
	// same semantic key (spec.md §4.2's co-submission collapse applies one
	// level up, in the scheduler; this is the identical concern at the
	// configuration-identity layer, since several submissions for the same
	// project/tools-version/global-properties triple commonly arrive at
	// once) into a single mutex acquisition instead of each goroutine
	// racing for the lock to do the same lookup-or-assign.
	resolve singleflight.Group
}

// New creates an empty config cache. disk may be nil when the session has
// not enabled MSBUILDCACHE / MSBUILDDEBUGFORCECACHING.
func New(disk *DiskStore) *Cache {
	return &Cache{
		byID:  make(map[model.ConfigID]*model.Configuration),
		byKey: make(map[string]model.ConfigID),
		disk:  disk,
	}
}

// GetOrAssign looks up cfg by semantic key; if an equivalent configuration
// is already registered its id is returned unchanged (and cfg is
// discarded). Otherwise cfg is assigned the next positive id and stored.
//
// This is the sole path by which an id moves from unassigned to assigned:
// spec.md §3 requires the assignment be one-time, which assignIDLocked enforces
// by refusing to touch a configuration that already carries one.
func (c *Cache) GetOrAssign(cfg *model.Configuration) (*model.Configuration, error) {
	key := cfg.Key()

	v, err, _ := c.resolve.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if id, ok := c.byKey[key]; ok {
			return c.byID[id], nil
		}

		if err := c.assignIDLocked(cfg); err != nil {
			return nil, err
		}
		c.byID[cfg.ID] = cfg
		c.byKey[key] = cfg.ID
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Configuration), nil
}

func (c *Cache) assignIDLocked(cfg *model.Configuration) error {
	if !cfg.ID.IsUnassigned() {
		return model.NewInternalError("configuration %s already carries id %d; reassignment is a fatal invariant violation", cfg.ProjectFullPath, cfg.ID)
	}
	c.nextID++
	cfg.ID = model.ConfigID(c.nextID)
	return nil
}

// Reconcile replaces a worker-generated (negative) id with the session's
// authoritative positive id for the equivalent configuration, per the
// "shallow-clone-with-new-id" path in spec.md §3.
func (c *Cache) Reconcile(generated *model.Configuration) (*model.Configuration, error) {
	if !generated.ID.IsGenerated() {
		return nil, model.NewInternalError("Reconcile called on a non-generated configuration id %d", generated.ID)
	}
	key := generated.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byKey[key]; ok {
		return c.byID[id], nil
	}

	c.nextID++
	clone := generated.ShallowCloneWithNewID(model.ConfigID(c.nextID))
	c.byID[clone.ID] = clone
	c.byKey[key] = clone.ID
	return clone, nil
}

// Get returns the configuration for id, if live.
func (c *Cache) Get(id model.ConfigID) (*model.Configuration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[id]
	return cfg, ok
}

// Remove drops a configuration from the in-memory cache and, if a disk
// store is attached and holds a swapped-out copy, deletes it.
func (c *Cache) Remove(id model.ConfigID) error {
	c.mu.Lock()
	cfg, ok := c.byID[id]
	if ok {
		delete(c.byID, id)
		delete(c.byKey, cfg.Key())
	}
	c.mu.Unlock()

	if c.disk != nil {
		return c.disk.Remove(id)
	}
	return nil
}

// Reset discards every configuration, per BuildManager.ResetCaches
// (spec.md §4.1). Disk artifacts owned by this cache are also removed.
func (c *Cache) Reset() error {
	c.mu.Lock()
	// byKey still lists configurations CacheToDisk swapped out of byID,
	// so their disk artifacts are removed too.
	ids := make([]model.ConfigID, 0, len(c.byKey))
	for _, id := range c.byKey {
		ids = append(ids, id)
	}
	c.byID = make(map[model.ConfigID]*model.Configuration)
	c.byKey = make(map[string]model.ConfigID)
	c.mu.Unlock()

	if c.disk == nil {
		return nil
	}
	for _, id := range ids {
		if err := c.disk.Remove(id); err != nil {
			return fmt.Errorf("resetting config cache: %w", err)
		}
	}
	return nil
}

// CacheToDisk swaps a cacheable configuration to disk and drops it from
// memory, returning an error if it is not cacheable or no disk store is
// attached.
func (c *Cache) CacheToDisk(id model.ConfigID) error {
	if c.disk == nil {
		return model.NewInternalError("CacheToDisk called with no disk store attached")
	}
	c.mu.Lock()
	cfg, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("configuration %d not registered", id)
	}
	if !cfg.IsCacheable {
		c.mu.Unlock()
		return fmt.Errorf("configuration %d is not cacheable", id)
	}
	delete(c.byID, id)
	c.mu.Unlock()

	return c.disk.Store(cfg)
}

// RetrieveFromDisk reloads a previously swapped-out configuration and
// re-registers it in memory.
func (c *Cache) RetrieveFromDisk(id model.ConfigID) (*model.Configuration, error) {
	if c.disk == nil {
		return nil, model.NewInternalError("RetrieveFromDisk called with no disk store attached")
	}
	cfg, err := c.disk.Load(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byID[cfg.ID] = cfg
	c.byKey[cfg.Key()] = cfg.ID
	c.mu.Unlock()
	return cfg, nil
}

// Len reports how many configurations are currently held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
