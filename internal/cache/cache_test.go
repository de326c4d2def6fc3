package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "crucible:test:combinations:v2"

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (failingStore) Save(context.Context, string, []byte) error { return errors.New("disk on fire") }
func (failingStore) Delete(context.Context, string) error { return errors.New("disk on fire") }

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing blob starts empty", func(t *testing.T) {
		c := New(store.NewMemoryStore(), testKey)
		assert.Equal(t, 0, c.Load(ctx))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("store failure starts empty", func(t *testing.T) {
		c := New(failingStore{}, testKey)
		assert.Equal(t, 0, c.Load(ctx))
	})

	t.Run("corrupt blob starts empty", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Save(ctx, testKey, []byte("{not json")))

		c := New(s, testKey)
		assert.Equal(t, 0, c.Load(ctx))
	})

	t.Run("reads persisted entries", func(t *testing.T) {
		s := store.NewMemoryStore()
		first := New(s, testKey)
		first.Put(ctx, "Cloud|Fire", alchemy.Succeeded(alchemy.Element{ID: "sunset", Name: "Sunset"}))
		first.Put(ctx, "Void|Void", alchemy.Failure())

		second := New(s, testKey)
		assert.Equal(t, 2, second.Load(ctx))

		r, ok := second.Get("Cloud|Fire")
		require.True(t, ok)
		assert.Equal(t, "Sunset", r.Element.Name)

		r, ok = second.Get("Void|Void")
		require.True(t, ok)
		assert.False(t, r.Success)
	})
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), testKey)

	c.Put(ctx, "A|B", alchemy.Succeeded(alchemy.Element{ID: "c", Name: "C"}))

	r, ok := c.Get("A|B")
	require.True(t, ok)
	r.Element.Name = "Mutated"

	again, _ := c.Get("A|B")
	assert.Equal(t, "C", again.Element.Name)
}

func TestPutCopiesInput(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), testKey)

	el := alchemy.Element{ID: "c", Name: "C"}
	r := alchemy.Result{Success: true, Element: &el}
	c.Put(ctx, "A|B", r)
	el.Name = "Mutated"

	got, _ := c.Get("A|B")
	assert.Equal(t, "C", got.Element.Name)
}

func TestPutSurvivesPersistFailure(t *testing.T) {
	ctx := context.Background()
	c := New(failingStore{}, testKey)

	c.Put(ctx, "A|B", alchemy.Failure())

	_, ok := c.Get("A|B")
	assert.True(t, ok, "in-memory entry must survive a failed write-through")
}

func TestPutPersistsAfterCancellation(t *testing.T) {
	s := store.NewMemoryStore()
	c := New(s, testKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Put(ctx, "A|B", alchemy.Failure())

	data, err := s.Load(context.Background(), testKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"A|B":{"success":false}}`, string(data))
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := New(s, testKey)

	c.Put(ctx, "A|B", alchemy.Failure())
	c.Put(ctx, "C|D", alchemy.Failure())

	assert.True(t, c.Delete(ctx, "A|B"))
	assert.False(t, c.Delete(ctx, "A|B"))
	assert.Equal(t, 1, c.Len())

	reloaded := New(s, testKey)
	assert.Equal(t, 1, reloaded.Load(ctx))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
	_, err := s.Load(ctx, testKey)
	assert.True(t, store.IsNotFound(err))
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), testKey)
	c.Put(ctx, "A|B", alchemy.Succeeded(alchemy.Element{ID: "c", Name: "C"}))

	entries := c.Entries()
	entries["A|B"].Element.Name = "Mutated"
	delete(entries, "A|B")

	got, ok := c.Get("A|B")
	require.True(t, ok)
	assert.Equal(t, "C", got.Element.Name)
}
