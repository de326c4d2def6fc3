// Package session ties the workspace, its history and the combination engine
// into the interactive flow: spawning, dragging, dropping, merging and undo.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/crucible/internal/engine"
	"github.com/dyluth/crucible/internal/history"
	"github.com/dyluth/crucible/internal/workspace"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// Seed placement of the first instance on a fresh workspace.
const (
	SeedElement = "Time"
	SeedX       = 100.0
	SeedY       = 150.0
)

var (
	// ErrUnknownElement is returned when spawning a name that is not in the library.
	ErrUnknownElement = errors.New("element not in library")

	// ErrInstanceBusy is returned when dropping an instance that is waiting on a merge.
	ErrInstanceBusy = errors.New("instance is waiting for a merge result")
)

// DropKind classifies what a drop did.
type DropKind string

const (
	// DropUnchanged: no target and no displacement. Nothing changed, no checkpoint.
	DropUnchanged DropKind = "unchanged"
	// DropMoved: no target, the instance was repositioned.
	DropMoved DropKind = "moved"
	// DropMerged: the pair was replaced by the combination result.
	DropMerged DropKind = "merged"
	// DropFailed: the pair did not combine and both instances are idle again.
	DropFailed DropKind = "failed"
	// DropDiscarded: the workspace changed under the merge (undo, clear, load)
	// so the result was not written back.
	DropDiscarded DropKind = "discarded"
)

// DropResult describes the outcome of Drop.
type DropResult struct {
	Kind     DropKind         `json:"kind"`
	TargetID string           `json:"target_id,omitempty"`
	ResultID string           `json:"result_id,omitempty"`
	Element  *alchemy.Element `json:"element,omitempty"`
	Tier     engine.Tier      `json:"tier,omitempty"`
	Reason   engine.Reason    `json:"reason,omitempty"`
	New      bool             `json:"new,omitempty"`
}

// Options configures a session.
type Options struct {
	HitRadius    float64
	HistoryLimit int
	// Workspace options appended after the hit radius, mainly for tests.
	WorkspaceOptions []workspace.Option
}

// Session is one player's workspace. Safe for concurrent use: every operation
// holds the session lock, which is released only while a merge is being resolved.
type Session struct {
	engine *engine.Engine

	mu      sync.Mutex
	ws      *workspace.Workspace
	history *history.History

	// merges maps a pending instance ID to the merge that marked it.
	merges   map[string]uint64
	mergeSeq uint64
}

// New creates a session with an empty workspace. Call Seed to place the first instance.
func New(eng *engine.Engine, opts Options) *Session {
	wsOpts := append([]workspace.Option{workspace.WithHitRadius(opts.HitRadius)}, opts.WorkspaceOptions...)
	ws := workspace.New(wsOpts...)
	return &Session{
		engine:  eng,
		ws:      ws,
		history: history.New(ws, opts.HistoryLimit),
		merges:  make(map[string]uint64),
	}
}

// Engine returns the session's combination engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Seed places the starting instance on an empty workspace. It is not undoable.
func (s *Session) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws.Len() > 0 {
		return
	}
	el, ok := s.engine.Library().Get(SeedElement)
	if !ok {
		el = alchemy.Template{Name: SeedElement}.Materialize(SeedElement, SeedElement)
	}
	s.ws.SpawnAt(el, SeedX, SeedY)
}

// Spawn places a new instance of a library element on the workspace.
func (s *Session) Spawn(name string) (alchemy.Instance, error) {
	el, ok := s.engine.Library().Get(name)
	if !ok {
		return alchemy.Instance{}, fmt.Errorf("%w: %q", ErrUnknownElement, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Checkpoint()
	id := s.ws.Spawn(el)
	inst, _ := s.ws.Get(id)
	return inst, nil
}

// Drag updates the advisory merge target for instance id hovering at (x, y).
// It never moves instances. Returns the highlighted target or "".
func (s *Session) Drag(id string, x, y float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws.DraggedID() != id {
		if err := s.ws.BeginDrag(id); err != nil {
			return "", err
		}
	}
	return s.ws.UpdateDrag(x, y), nil
}

// Drop releases instance id at (x, y).
//
// With an idle instance strictly within the hit radius the pair is merged:
// both stay where they were, are marked pending, and the engine resolves them
// with the session lock released. The result is written back only if both
// instances are still pending for this merge; otherwise it is discarded.
// Without a target the instance is moved, and a drop with zero displacement
// changes nothing.
func (s *Session) Drop(ctx context.Context, id string, x, y float64) (DropResult, error) {
	s.mu.Lock()

	inst, ok := s.ws.Get(id)
	if !ok {
		s.mu.Unlock()
		return DropResult{}, &workspace.NotFoundError{ID: id}
	}
	if inst.IsLoading() {
		s.mu.Unlock()
		return DropResult{}, ErrInstanceBusy
	}
	s.ws.EndDrag()

	targetID, _, found := s.ws.Nearest(id, x, y)
	if !found {
		defer s.mu.Unlock()
		if inst.X == x && inst.Y == y {
			return DropResult{Kind: DropUnchanged}, nil
		}
		s.history.Checkpoint()
		if err := s.ws.Move(id, x, y); err != nil {
			return DropResult{}, err
		}
		return DropResult{Kind: DropMoved}, nil
	}

	target, _ := s.ws.Get(targetID)
	s.history.Checkpoint()
	_ = s.ws.SetPending(id, targetID, true)
	s.mergeSeq++
	token := s.mergeSeq
	s.merges[id] = token
	s.merges[targetID] = token
	s.mu.Unlock()

	out, err := s.engine.Combine(ctx, inst.Element, target.Element)

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.merges[id] == token && s.merges[targetID] == token
	for _, mid := range []string{id, targetID} {
		if s.merges[mid] == token {
			delete(s.merges, mid)
		}
	}

	a, okA := s.ws.Get(id)
	b, okB := s.ws.Get(targetID)
	if !owned || !okA || !okB || !a.IsLoading() || !b.IsLoading() {
		log.Printf("[Session] Discarding result for %s: workspace changed during merge", out.Key)
		return DropResult{Kind: DropDiscarded, TargetID: targetID, Tier: out.Tier, New: out.New}, nil
	}

	if err != nil || !out.Result.Success {
		_ = s.ws.SetPending(id, targetID, false)
		res := DropResult{Kind: DropFailed, TargetID: targetID, Tier: out.Tier, Reason: engine.ReasonOf(err)}
		if res.Reason == "" {
			res.Reason = engine.ReasonInvalidMix
		}
		return res, nil
	}

	mx, my := workspace.Midpoint(inst, target)
	if err := s.ws.RemovePair(id, targetID); err != nil {
		return DropResult{}, err
	}
	el := *out.Result.Element
	resultID := s.ws.AddResult(el, mx, my)

	return DropResult{
		Kind:     DropMerged,
		TargetID: targetID,
		ResultID: resultID,
		Element:  &el,
		Tier:     out.Tier,
		New:      out.New,
	}, nil
}

// Clear removes every instance. Clearing an empty workspace records no checkpoint.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws.Len() == 0 {
		return
	}
	s.history.Checkpoint()
	s.ws.Clear()
}

// Undo reverts the last checkpointed change. Returns false if there is none.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Undo()
}

// Redo reapplies the last undone change. Returns false if there is none.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Redo()
}

// LoadSnapshot replaces the workspace with instances. The load is undoable.
func (s *Session) LoadSnapshot(instances []alchemy.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Checkpoint()
	s.ws.Import(instances)
}

// Export returns the workspace in snapshot form, with pending markers cleared.
func (s *Session) Export() []alchemy.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Export()
}

// View is a read-only copy of the session state for display.
type View struct {
	Instances []alchemy.Instance `json:"instances"`
	DraggedID string             `json:"dragged_id,omitempty"`
	TargetID  string             `json:"target_id,omitempty"`
	CanUndo   bool               `json:"can_undo"`
	CanRedo   bool               `json:"can_redo"`
}

// View returns the current state, pending markers included.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{
		Instances: s.ws.Instances(),
		DraggedID: s.ws.DraggedID(),
		TargetID:  s.ws.TargetID(),
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
	}
}

// Library returns every known element in discovery order.
func (s *Session) Library() []alchemy.Element {
	return s.engine.Library().Elements()
}
