// Package workspace holds the live instances on the canvas: placement,
// movement, merge-target hit-testing and the advisory drag state.
//
// A Workspace is not safe for concurrent use; the session serializes access.
package workspace

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/google/uuid"
)

// DefaultHitRadius is the distance below which a dropped instance merges with another.
const DefaultHitRadius = 40.0

// Placer picks the position of a freshly spawned instance.
type Placer func() (x, y float64)

// RandomPlacer scatters spawns in the [50, 100) square near the canvas origin.
func RandomPlacer() (float64, float64) {
	return 50 + rand.Float64()*50, 50 + rand.Float64()*50
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithHitRadius overrides the merge radius. Non-positive values are ignored.
func WithHitRadius(r float64) Option {
	return func(w *Workspace) {
		if r > 0 {
			w.hitRadius = r
		}
	}
}

// WithPlacer overrides spawn placement.
func WithPlacer(p Placer) Option {
	return func(w *Workspace) {
		if p != nil {
			w.placer = p
		}
	}
}

// WithIDGenerator overrides instance ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(w *Workspace) {
		if gen != nil {
			w.newID = gen
		}
	}
}

// Workspace is an ordered collection of instances.
// Collection order is insertion order and is the tie-break order for Nearest.
type Workspace struct {
	instances []alchemy.Instance
	hitRadius float64
	placer    Placer
	newID     func() string

	dragging string
	target   string
}

// New creates an empty workspace.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		hitRadius: DefaultHitRadius,
		placer:    RandomPlacer,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HitRadius returns the merge radius in canvas units.
func (w *Workspace) HitRadius() float64 {
	return w.hitRadius
}

// Spawn places el at a position chosen by the placer and returns its instance ID.
func (w *Workspace) Spawn(el alchemy.Element) string {
	x, y := w.placer()
	return w.SpawnAt(el, x, y)
}

// SpawnAt places el at (x, y) and returns its instance ID.
func (w *Workspace) SpawnAt(el alchemy.Element, x, y float64) string {
	inst := alchemy.Instance{
		Element:    el,
		InstanceID: w.newID(),
		X:          x,
		Y:          y,
		State:      alchemy.StateIdle,
	}
	w.instances = append(w.instances, inst)
	return inst.InstanceID
}

// AddResult places the product of a merge at (x, y). Equivalent to SpawnAt.
func (w *Workspace) AddResult(el alchemy.Element, x, y float64) string {
	return w.SpawnAt(el, x, y)
}

// RemovePair removes both instances. It fails without changes if either is missing.
func (w *Workspace) RemovePair(idA, idB string) error {
	if !w.Has(idA) {
		return &NotFoundError{ID: idA}
	}
	if !w.Has(idB) {
		return &NotFoundError{ID: idB}
	}

	kept := w.instances[:0]
	for _, inst := range w.instances {
		if inst.InstanceID == idA || inst.InstanceID == idB {
			continue
		}
		kept = append(kept, inst)
	}
	w.instances = kept
	w.forget(idA)
	w.forget(idB)
	return nil
}

// Move repositions an instance.
func (w *Workspace) Move(id string, x, y float64) error {
	i := w.indexOf(id)
	if i < 0 {
		return &NotFoundError{ID: id}
	}
	w.instances[i].X = x
	w.instances[i].Y = y
	return nil
}

// SetPending marks both instances as taking part in an in-flight combine, or clears the mark.
func (w *Workspace) SetPending(idA, idB string, pending bool) error {
	ia, ib := w.indexOf(idA), w.indexOf(idB)
	if ia < 0 {
		return &NotFoundError{ID: idA}
	}
	if ib < 0 {
		return &NotFoundError{ID: idB}
	}

	state := alchemy.StateIdle
	if pending {
		state = alchemy.StatePending
	}
	w.instances[ia].State = state
	w.instances[ib].State = state
	return nil
}

// Clear removes every instance and resets the drag state.
func (w *Workspace) Clear() {
	w.instances = nil
	w.dragging = ""
	w.target = ""
}

// Get returns a copy of the instance with id.
func (w *Workspace) Get(id string) (alchemy.Instance, bool) {
	i := w.indexOf(id)
	if i < 0 {
		return alchemy.Instance{}, false
	}
	return w.instances[i], true
}

// Has reports whether an instance with id is on the workspace.
func (w *Workspace) Has(id string) bool {
	return w.indexOf(id) >= 0
}

// Len returns the number of instances.
func (w *Workspace) Len() int {
	return len(w.instances)
}

// Instances returns a copy of the collection in order, pending state included.
func (w *Workspace) Instances() []alchemy.Instance {
	out := make([]alchemy.Instance, len(w.instances))
	copy(out, w.instances)
	return out
}

// Restore replaces the collection with instances verbatim and resets the drag state.
func (w *Workspace) Restore(instances []alchemy.Instance) {
	w.instances = make([]alchemy.Instance, len(instances))
	copy(w.instances, instances)
	w.dragging = ""
	w.target = ""
}

// Export returns the snapshot form: a copy with every in-flight marker cleared.
func (w *Workspace) Export() []alchemy.Instance {
	out := make([]alchemy.Instance, len(w.instances))
	for i, inst := range w.instances {
		out[i] = inst.Idle()
	}
	return out
}

// Import restores a snapshot, clearing any pending marker it carries.
func (w *Workspace) Import(instances []alchemy.Instance) {
	w.Restore(instances)
	for i := range w.instances {
		w.instances[i] = w.instances[i].Idle()
	}
}

// Nearest finds the merge target for a drop at (x, y): the idle instance other
// than excludeID whose distance is strictly less than the hit radius and
// minimal. Ties go to the instance that comes first in collection order.
func (w *Workspace) Nearest(excludeID string, x, y float64) (string, float64, bool) {
	bestID := ""
	bestDist := math.Inf(1)

	for _, inst := range w.instances {
		if inst.InstanceID == excludeID || inst.IsLoading() {
			continue
		}
		d := math.Hypot(inst.X-x, inst.Y-y)
		if d >= w.hitRadius {
			continue
		}
		if d < bestDist {
			bestID, bestDist = inst.InstanceID, d
		}
	}

	if bestID == "" {
		return "", 0, false
	}
	return bestID, bestDist, true
}

// BeginDrag records that id is being dragged.
func (w *Workspace) BeginDrag(id string) error {
	if !w.Has(id) {
		return &NotFoundError{ID: id}
	}
	w.dragging = id
	w.target = ""
	return nil
}

// UpdateDrag recomputes the highlighted merge target for the dragged instance
// at (x, y) and returns it. Instances are not moved.
func (w *Workspace) UpdateDrag(x, y float64) string {
	if w.dragging == "" {
		return ""
	}
	id, _, ok := w.Nearest(w.dragging, x, y)
	if !ok {
		id = ""
	}
	w.target = id
	return id
}

// EndDrag clears the drag state.
func (w *Workspace) EndDrag() {
	w.dragging = ""
	w.target = ""
}

// DraggedID returns the instance currently being dragged, if any.
func (w *Workspace) DraggedID() string {
	return w.dragging
}

// TargetID returns the currently highlighted merge target, if any.
func (w *Workspace) TargetID() string {
	return w.target
}

// Midpoint returns the point halfway between two instances.
func Midpoint(a, b alchemy.Instance) (float64, float64) {
	return (a.X + b.X) / 2, (a.Y + b.Y) / 2
}

func (w *Workspace) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range w.instances {
		if w.instances[i].InstanceID == id {
			return i
		}
	}
	return -1
}

// forget drops drag references to a removed instance.
func (w *Workspace) forget(id string) {
	if w.dragging == id {
		w.dragging = ""
	}
	if w.target == id {
		w.target = ""
	}
}

// NotFoundError is returned when an operation names an instance that is not on the workspace.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instance %q not found on workspace", e.ID)
}
