package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// Library is the append-only set of known elements, keyed by Name.
// Insertion order is preserved for display. Safe for concurrent use.
type Library struct {
	store      store.Store
	storageKey string

	mu       sync.RWMutex
	elements []alchemy.Element
	index    map[string]int
}

// NewLibrary creates a library seeded with starters and persisted under
// storageKey in s. s may be nil for a purely in-memory library.
func NewLibrary(s store.Store, storageKey string, starters []alchemy.Element) *Library {
	l := &Library{
		store:      s,
		storageKey: storageKey,
		index:      make(map[string]int),
	}
	for _, el := range starters {
		l.insert(el)
	}
	return l
}

// Load merges previously persisted discoveries into the library.
// Like the cache, Load never fails; problems are logged. Returns how many
// elements were added.
func (l *Library) Load(ctx context.Context) int {
	if l.store == nil {
		return 0
	}

	data, err := l.store.Load(ctx, l.storageKey)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Printf("[Library] Failed to load %s: %v", l.storageKey, err)
		}
		return 0
	}

	var persisted []alchemy.Element
	if err := json.Unmarshal(data, &persisted); err != nil {
		log.Printf("[Library] Ignoring unreadable library blob %s: %v", l.storageKey, err)
		return 0
	}

	added := 0
	l.mu.Lock()
	for _, el := range persisted {
		if el.ID == "" {
			el.ID = alchemy.Slug(el.Name)
		}
		if el.Validate() != nil {
			continue
		}
		if l.insert(el) {
			added++
		}
	}
	l.mu.Unlock()

	return added
}

// Add records el if no element with the same name is known yet.
// Returns true if el was new. The library is persisted on every addition.
func (l *Library) Add(ctx context.Context, el alchemy.Element) bool {
	l.mu.Lock()
	added := l.insert(el)
	l.mu.Unlock()

	if added {
		if err := l.persist(ctx); err != nil {
			log.Printf("[Library] %v", err)
		}
	}
	return added
}

// Get looks up an element by name.
func (l *Library) Get(name string) (alchemy.Element, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[name]
	if !ok {
		return alchemy.Element{}, false
	}
	return l.elements[i], true
}

// Has reports whether an element with this name is known.
func (l *Library) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Elements returns all known elements in discovery order.
func (l *Library) Elements() []alchemy.Element {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]alchemy.Element, len(l.elements))
	copy(out, l.elements)
	return out
}

// Len returns the number of known elements.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.elements)
}

// insert must be called with mu held (or before the library is shared).
func (l *Library) insert(el alchemy.Element) bool {
	if _, exists := l.index[el.Name]; exists {
		return false
	}
	l.index[el.Name] = len(l.elements)
	l.elements = append(l.elements, el)
	return true
}

func (l *Library) persist(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	data, err := json.Marshal(l.Elements())
	if err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := l.store.Save(saveCtx, l.storageKey, data); err != nil {
		return fmt.Errorf("failed to persist library %s: %w", l.storageKey, err)
	}
	return nil
}
