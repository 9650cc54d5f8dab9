// Package resultscache memoizes per-configuration build results, honors
// the override-cache shadowing contract, and serializes results to disk
// restricted to a submission's top-level targets (spec.md §4.3).
package resultscache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/buildforge/manager/pkg/memory"
	"github.com/buildforge/manager/pkg/model"
)

// OverrideCache is any externally supplied, read-only results cache
// consulted before the session's own cache (spec.md §3/§4.3/glossary).
type OverrideCache interface {
	Get(id model.ConfigID) (*model.Result, bool)
	Has(id model.ConfigID) bool
}

// Cache is the session's in-memory results cache, keyed by configuration
// id, with merged-by-target result accumulation.
type Cache struct {
	mu       sync.RWMutex
	results  map[model.ConfigID]*model.Result
	override OverrideCache
}

// New creates an empty results cache. override may be nil.
func New(override OverrideCache) *Cache {
	return &Cache{
		results:  make(map[model.ConfigID]*model.Result),
		override: override,
	}
}

// Get consults the override cache first, then the session cache, per the
// shadowing rule in spec.md §3: "when a config is known to the override
// cache, the session cache never records results for it."
func (c *Cache) Get(id model.ConfigID) (*model.Result, bool) {
	if c.override != nil {
		if r, ok := c.override.Get(id); ok {
			return r, true
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[id]
	return r, ok
}

// Add merges result into the cache entry for its configuration. If the
// override cache already knows this configuration, the write is
// silently dropped — the session cache must never shadow the override.
func (c *Cache) Add(result *model.Result) {
	if c.override != nil && c.override.Has(result.ConfigID) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.results[result.ConfigID]
	if !ok {
		c.results[result.ConfigID] = result.Clone()
		return
	}
	existing.Merge(result)
}

// IsComplete reports whether the cached result (if any) for id already
// covers every one of targets, the predicate the scheduler's result-cache
// fast path relies on (spec.md §4.2).
func (c *Cache) IsComplete(id model.ConfigID, targets []string) (*model.Result, bool) {
	r, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	return r, r.IsComplete(targets)
}

// HasFailedTarget reports whether the cached result for id already
// records target as a (non-skipped) failure, the lookup that drives
// skip-unsuccessful replay (spec.md §4.2).
func (c *Cache) HasFailedTarget(id model.ConfigID, target string) bool {
	r, ok := c.Get(id)
	if !ok {
		return false
	}
	tr, ok := r.Targets[target]
	return ok && tr.Code == model.ResultFailure
}

// Reset discards every cached result, per BuildManager.ResetCaches.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[model.ConfigID]*model.Result)
}

// Remove drops the cached result for a single configuration, used when a
// configuration is evicted individually rather than via a full reset.
func (c *Cache) Remove(id model.ConfigID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, id)
}

// Len reports how many configurations have cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// SerializeForSubmission encodes the (restricted) result for id, keeping
// only the named top-level targets — not their transitive dependency
// targets — as required under "full" project isolation (spec.md §4.3).
func SerializeForSubmission(result *model.Result, topLevelTargets []string) ([]byte, error) {
	restricted := result.RestrictToTargets(topLevelTargets)

	pooled := memory.GetBuffer(memory.SmallBuffer)
	defer memory.PutBuffer(pooled, memory.SmallBuffer)

	buf := bytes.NewBuffer(pooled[:0])
	buf.WriteByte(diskFormatVersion)
	enc := gob.NewEncoder(buf)
	if err := enc.Encode(restricted); err != nil {
		return nil, fmt.Errorf("encoding result for configuration %d: %w", result.ConfigID, err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

const diskFormatVersion byte = 1

// DeserializeResult decodes a result previously produced by
// SerializeForSubmission, rejecting unknown format versions.
func DeserializeResult(data []byte) (*model.Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty result payload")
	}
	if data[0] != diskFormatVersion {
		return nil, fmt.Errorf("result payload has unknown format version %d", data[0])
	}
	var result model.Result
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &result, nil
}
