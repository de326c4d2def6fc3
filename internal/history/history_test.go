package history

import (
	"fmt"
	"testing"

	"github.com/dyluth/crucible/internal/workspace"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace() *workspace.Workspace {
	n := 0
	return workspace.New(workspace.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("inst-%d", n)
	}))
}

func names(w *workspace.Workspace) []string {
	var out []string
	for _, inst := range w.Instances() {
		out = append(out, inst.Name)
	}
	return out
}

func spawn(h *History, w *workspace.Workspace, name string) string {
	h.Checkpoint()
	return w.SpawnAt(alchemy.Element{ID: alchemy.Slug(name), Name: name}, 0, 0)
}

func TestUndoRedo(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)

	assert.False(t, h.Undo())
	assert.False(t, h.Redo())

	spawn(h, w, "Water")
	spawn(h, w, "Fire")
	assert.Equal(t, []string{"Water", "Fire"}, names(w))

	require.True(t, h.Undo())
	assert.Equal(t, []string{"Water"}, names(w))

	require.True(t, h.Undo())
	assert.Empty(t, names(w))
	assert.False(t, h.CanUndo())

	require.True(t, h.Redo())
	require.True(t, h.Redo())
	assert.Equal(t, []string{"Water", "Fire"}, names(w))
	assert.False(t, h.CanRedo())
}

func TestUndoThenRedoIsIdentity(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)

	id := spawn(h, w, "Water")
	h.Checkpoint()
	require.NoError(t, w.Move(id, 42, 24))
	before := w.Instances()

	require.True(t, h.Undo())
	require.True(t, h.Redo())
	assert.Equal(t, before, w.Instances())
}

func TestCheckpointClearsRedo(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)

	spawn(h, w, "Water")
	require.True(t, h.Undo())
	assert.True(t, h.CanRedo())

	spawn(h, w, "Fire")
	assert.False(t, h.CanRedo())
	undo, redo := h.Depths()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)
}

func TestSnapshotsArePendingFree(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)

	a := spawn(h, w, "Water")
	b := spawn(h, w, "Fire")
	require.NoError(t, w.SetPending(a, b, true))

	// A merge checkpoint taken while pending, then undone.
	h.Checkpoint()
	require.True(t, h.Undo())

	for _, inst := range w.Instances() {
		assert.False(t, inst.IsLoading())
	}
}

func TestSnapshotsAreDeepCopies(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)

	id := spawn(h, w, "Water")
	h.Checkpoint()
	require.NoError(t, w.Move(id, 10, 10))
	h.Checkpoint()
	require.NoError(t, w.Move(id, 20, 20))

	require.True(t, h.Undo())
	inst, _ := w.Get(id)
	assert.Equal(t, 10.0, inst.X)

	require.True(t, h.Undo())
	inst, _ = w.Get(id)
	assert.Equal(t, 0.0, inst.X)
}

func TestLimit(t *testing.T) {
	w := newWorkspace()
	h := New(w, 2)

	spawn(h, w, "A")
	spawn(h, w, "B")
	spawn(h, w, "C")

	undo, _ := h.Depths()
	assert.Equal(t, 2, undo)

	require.True(t, h.Undo())
	require.True(t, h.Undo())
	assert.False(t, h.Undo())
	assert.Equal(t, []string{"A"}, names(w), "oldest checkpoint was dropped")
}

func TestReset(t *testing.T) {
	w := newWorkspace()
	h := New(w, 0)
	spawn(h, w, "A")
	h.Undo()

	h.Reset()
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
}
