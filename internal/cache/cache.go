// Package cache implements the resolution cache: a persisted map from
// combination keys to previously resolved results, failures included, so a
// pair is only ever sent to the generative resolver once.
package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// persistTimeout bounds every write-through to the backing store so a slow
// backend cannot hold up a combine.
const persistTimeout = 2 * time.Second

// Cache is the in-memory resolution cache with write-through persistence.
// Safe for concurrent use.
type Cache struct {
	store      store.Store
	storageKey string

	mu      sync.RWMutex
	entries map[alchemy.Key]alchemy.Result
}

// New creates an empty cache persisted under storageKey in s.
// Call Load once before use to pick up previously persisted entries.
func New(s store.Store, storageKey string) *Cache {
	return &Cache{
		store:      s,
		storageKey: storageKey,
		entries:    make(map[alchemy.Key]alchemy.Result),
	}
}

// Load replaces the in-memory entries with the persisted blob.
// Load never fails: a missing blob, an unreachable store or a corrupt blob is
// logged and leaves the cache empty. Returns the number of entries loaded.
func (c *Cache) Load(ctx context.Context) int {
	data, err := c.store.Load(ctx, c.storageKey)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Printf("[Cache] Failed to load %s, starting empty: %v", c.storageKey, err)
		}
		c.reset()
		return 0
	}

	entries, skipped, err := alchemy.DecodeCache(data)
	if err != nil {
		log.Printf("[Cache] Ignoring unreadable cache blob %s: %v", c.storageKey, err)
		c.reset()
		return 0
	}
	if skipped > 0 {
		log.Printf("[Cache] Skipped %d malformed entries in %s", skipped, c.storageKey)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	return len(entries)
}

// Get returns a deep copy of the cached result for key.
func (c *Cache) Get(key alchemy.Key) (alchemy.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.entries[key]
	if !ok {
		return alchemy.Result{}, false
	}
	return r.Clone(), true
}

// Put records the result for key and persists the whole cache.
// Persistence failures are logged and never returned; the in-memory entry
// stays valid for the rest of the session.
func (c *Cache) Put(ctx context.Context, key alchemy.Key, result alchemy.Result) {
	c.mu.Lock()
	c.entries[key] = result.Clone()
	c.mu.Unlock()

	c.persist(ctx)
}

// Delete removes one entry and persists. Returns false if key was not cached.
func (c *Cache) Delete(ctx context.Context, key alchemy.Key) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.persist(ctx)
	}
	return ok
}

// Clear drops every entry and removes the persisted blob.
func (c *Cache) Clear(ctx context.Context) error {
	c.reset()
	return c.store.Delete(ctx, c.storageKey)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a deep copy of all cached results.
func (c *Cache) Entries() map[alchemy.Key]alchemy.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[alchemy.Key]alchemy.Result, len(c.entries))
	for k, r := range c.entries {
		out[k] = r.Clone()
	}
	return out
}

func (c *Cache) reset() {
	c.mu.Lock()
	c.entries = make(map[alchemy.Key]alchemy.Result)
	c.mu.Unlock()
}

func (c *Cache) persist(ctx context.Context) {
	data, err := alchemy.EncodeCache(c.Entries())
	if err != nil {
		log.Printf("[Cache] Failed to encode cache: %v", err)
		return
	}

	// Detach from the caller's cancellation: a combine that is being abandoned
	// still leaves its memoized result behind.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.store.Save(saveCtx, c.storageKey, data); err != nil {
		log.Printf("[Cache] Failed to persist %s: %v", c.storageKey, err)
	}
}
