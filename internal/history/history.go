// Package history implements undo/redo over deep snapshots of the workspace.
package history

import "github.com/dyluth/crucible/pkg/alchemy"

// Snapshotter is the state the history machine captures and restores.
// Implemented by *workspace.Workspace via Export/Import.
type Snapshotter interface {
	Export() []alchemy.Instance
	Import(instances []alchemy.Instance)
}

// History holds undo and redo stacks of workspace snapshots.
// Not safe for concurrent use.
type History struct {
	target Snapshotter
	limit  int
	undo   [][]alchemy.Instance
	redo   [][]alchemy.Instance
}

// New creates a history over target. limit caps the undo depth; 0 means unbounded.
func New(target Snapshotter, limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{target: target, limit: limit}
}

// Checkpoint records the current state before a mutation and clears the redo stack.
func (h *History) Checkpoint() {
	h.undo = append(h.undo, snapshot(h.target))
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

// Undo restores the most recent checkpoint. Returns false if there is none.
func (h *History) Undo() bool {
	if len(h.undo) == 0 {
		return false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]

	h.redo = append(h.redo, snapshot(h.target))
	h.target.Import(prev)
	return true
}

// Redo reapplies the most recently undone state. Returns false if there is none.
func (h *History) Redo() bool {
	if len(h.redo) == 0 {
		return false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]

	h.undo = append(h.undo, snapshot(h.target))
	h.target.Import(next)
	return true
}

// CanUndo reports whether Undo would change anything.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether Redo would change anything.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Depths returns the sizes of the undo and redo stacks.
func (h *History) Depths() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// Reset discards both stacks.
func (h *History) Reset() {
	h.undo = nil
	h.redo = nil
}

// snapshot takes a deep copy with in-flight markers stripped. Export already
// copies and clears pending state; this guards Snapshotters that do not.
func snapshot(s Snapshotter) []alchemy.Instance {
	src := s.Export()
	out := make([]alchemy.Instance, len(src))
	for i, inst := range src {
		out[i] = inst.Idle()
	}
	return out
}
