// Package snapshot persists named copies of the workspace so a player can
// save an arrangement and load it back later.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/google/uuid"
)

// Snapshot is a saved workspace.
type Snapshot struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	TimestampMs int64              `json:"timestamp_ms"`
	Elements    []alchemy.Instance `json:"elements"`
}

// Criteria filters snapshot listings.
// All filters are ANDed together; zero values match everything.
type Criteria struct {
	SinceMs  int64  // Unix milliseconds, 0 = no lower bound
	UntilMs  int64  // Unix milliseconds, 0 = no upper bound
	NameGlob string // filepath.Match pattern on Name, empty = no filter
}

// Matches reports whether s passes every criterion.
func (c Criteria) Matches(s Snapshot) bool {
	if c.SinceMs > 0 && s.TimestampMs < c.SinceMs {
		return false
	}
	if c.UntilMs > 0 && s.TimestampMs > c.UntilMs {
		return false
	}
	if c.NameGlob != "" {
		matched, err := filepath.Match(c.NameGlob, s.Name)
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// Manager reads and writes the snapshot list, kept newest first in a single blob.
// Safe for concurrent use within one process.
type Manager struct {
	store      store.Store
	storageKey string
	now        func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager for the list stored under storageKey in s.
func NewManager(s store.Store, storageKey string) *Manager {
	return &Manager{store: s, storageKey: storageKey, now: time.Now}
}

// Save stores a new snapshot of instances under name. Pending markers are cleared.
func (m *Manager) Save(ctx context.Context, name string, instances []alchemy.Instance) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, fmt.Errorf("snapshot name cannot be empty")
	}

	elements := make([]alchemy.Instance, len(instances))
	for i, inst := range instances {
		elements[i] = inst.Idle()
	}

	snap := Snapshot{
		ID:          uuid.NewString(),
		Name:        name,
		TimestampMs: m.now().UnixMilli(),
		Elements:    elements,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	all = append([]Snapshot{snap}, all...)
	if err := m.save(ctx, all); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// List returns the snapshots matching c, newest first.
func (m *Manager) List(ctx context.Context, c Criteria) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		if c.Matches(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Get returns the snapshot with the exact id.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return Snapshot{}, &NotFoundError{ShortID: id}
}

// Delete removes the snapshot with the exact id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return err
	}

	kept := make([]Snapshot, 0, len(all))
	for _, s := range all {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(all) {
		return &NotFoundError{ShortID: id}
	}
	return m.save(ctx, kept)
}

// Resolve expands a short ID prefix to a full snapshot ID.
//
// A full UUID is checked for existence and returned as-is. Shorter input must
// be at least MinShortIDLength characters and match exactly one snapshot.
func (m *Manager) Resolve(ctx context.Context, shortID string) (string, error) {
	if isFullID(shortID) {
		if _, err := m.Get(ctx, shortID); err != nil {
			return "", err
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	all, err := m.List(ctx, Criteria{})
	if err != nil {
		return "", err
	}

	var matches []string
	for _, s := range all {
		if strings.HasPrefix(s.ID, shortID) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

func (m *Manager) load(ctx context.Context) ([]Snapshot, error) {
	data, err := m.store.Load(ctx, m.storageKey)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	var all []Snapshot
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return all, nil
}

func (m *Manager) save(ctx context.Context, all []Snapshot) error {
	if len(all) == 0 {
		if err := m.store.Delete(ctx, m.storageKey); err != nil {
			return fmt.Errorf("failed to delete snapshots: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}
	if err := m.store.Save(ctx, m.storageKey, data); err != nil {
		return fmt.Errorf("failed to save snapshots: %w", err)
	}
	return nil
}

func isFullID(id string) bool {
	return len(id) == 36 && strings.Count(id, "-") == 4
}
