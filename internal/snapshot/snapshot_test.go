package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapKey = "crucible:test:snapshots"

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	m := NewManager(s, snapKey)

	clock := time.UnixMilli(1_700_000_000_000)
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return m, s
}

func instances() []alchemy.Instance {
	return []alchemy.Instance{
		{Element: alchemy.Element{ID: "water", Name: "Water"}, InstanceID: "i-1", X: 1, Y: 2, State: alchemy.StatePending},
		{Element: alchemy.Element{ID: "fire", Name: "Fire"}, InstanceID: "i-2", X: 3, Y: 4},
	}
}

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	first, err := m.Save(ctx, "morning", instances())
	require.NoError(t, err)
	second, err := m.Save(ctx, "evening", nil)
	require.NoError(t, err)

	all, err := m.List(ctx, Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)

	for _, inst := range all[1].Elements {
		assert.False(t, inst.IsLoading(), "saved snapshots carry no pending state")
	}

	_, err = m.Save(ctx, "   ", nil)
	assert.Error(t, err)
}

func TestListCriteria(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	a, _ := m.Save(ctx, "castle-v1", nil)
	b, _ := m.Save(ctx, "castle-v2", nil)
	c, _ := m.Save(ctx, "garden", nil)

	got, err := m.List(ctx, Criteria{NameGlob: "castle-*"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.List(ctx, Criteria{SinceMs: b.TimestampMs})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, c.ID, got[0].ID)

	got, err = m.List(ctx, Criteria{UntilMs: a.TimestampMs})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = m.List(ctx, Criteria{NameGlob: "[bad"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetAndDelete(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	snap, err := m.Save(ctx, "only", instances())
	require.NoError(t, err)

	got, err := m.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "only", got.Name)
	assert.Len(t, got.Elements, 2)

	require.NoError(t, m.Delete(ctx, snap.ID))
	_, err = m.Get(ctx, snap.ID)
	assert.True(t, IsNotFoundError(err))

	err = m.Delete(ctx, snap.ID)
	assert.True(t, IsNotFoundError(err))

	_, err = s.Load(ctx, snapKey)
	assert.True(t, store.IsNotFound(err), "deleting the last snapshot removes the blob")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	seeded := []Snapshot{
		{ID: "aaaaaaaa-1111-4000-8000-000000000001", Name: "one"},
		{ID: "aaaaaaaa-2222-4000-8000-000000000002", Name: "two"},
		{ID: "bbbbbbbb-3333-4000-8000-000000000003", Name: "three"},
	}
	data, err := json.Marshal(seeded)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, snapKey, data))

	t.Run("full id", func(t *testing.T) {
		id, err := m.Resolve(ctx, seeded[2].ID)
		require.NoError(t, err)
		assert.Equal(t, seeded[2].ID, id)

		_, err = m.Resolve(ctx, "cccccccc-3333-4000-8000-000000000003")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := m.Resolve(ctx, "bbbbbb")
		require.NoError(t, err)
		assert.Equal(t, seeded[2].ID, id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := m.Resolve(ctx, "aaaaaaaa")
		require.True(t, IsAmbiguousError(err))

		ae := err.(*AmbiguousError)
		assert.Len(t, ae.Matches, 2)
		msg := FormatAmbiguousError(ae)
		assert.Contains(t, msg, seeded[0].ID)
		assert.Contains(t, msg, "longer prefix")
	})

	t.Run("too short", func(t *testing.T) {
		_, err := m.Resolve(ctx, "aaa")
		assert.ErrorContains(t, err, "at least 6 characters")
	})

	t.Run("no match", func(t *testing.T) {
		_, err := m.Resolve(ctx, "ffffff")
		assert.True(t, IsNotFoundError(err))
	})
}

func TestFormatAmbiguousError_Truncates(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = fmt.Sprintf("id-%02d", i)
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "id-", Matches: matches})
	assert.Contains(t, msg, "id-09")
	assert.NotContains(t, msg, "id-10")
	assert.Contains(t, msg, "...and 2 more")
}

func TestCorruptBlob(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	require.NoError(t, s.Save(ctx, snapKey, []byte("{")))

	_, err := m.List(ctx, Criteria{})
	assert.Error(t, err)
	_, err = m.Save(ctx, "x", nil)
	assert.Error(t, err, "a corrupt list is never overwritten silently")
}
