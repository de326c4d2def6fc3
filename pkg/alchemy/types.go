package alchemy

import (
	"fmt"
	"strings"
)

// Default values applied to templates that omit optional presentation fields.
const (
	DefaultEmoji = "✨"
	DefaultColor = "#a3a3a3"
)

// Element is an immutable element definition.
// Identity is by Name: two definitions with the same Name are the same discovered element.
type Element struct {
	ID          string `json:"id"`              // Stable slug derived from Name
	Name        string `json:"name"`            // Case-sensitive identity used for recipe matching
	Emoji       string `json:"emoji"`           // Display glyph
	Description string `json:"description"`     // Short flavour text
	Color       string `json:"color,omitempty"` // Display hint (hex), may be empty
}

// Template is a partial element definition as found in the recipe table or in a
// generative payload. Only Name is required; Materialize fills the rest.
type Template struct {
	Name        string `json:"name" yaml:"name"`
	Emoji       string `json:"emoji,omitempty" yaml:"emoji,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Materialize turns the template into a full Element, deriving the ID from the
// name and defaulting any missing presentation field. a and b are the ingredient
// names used for the default description.
func (t Template) Materialize(a, b string) Element {
	el := Element{
		ID:          Slug(t.Name),
		Name:        t.Name,
		Emoji:       t.Emoji,
		Description: t.Description,
		Color:       t.Color,
	}
	if el.Emoji == "" {
		el.Emoji = DefaultEmoji
	}
	if el.Description == "" {
		el.Description = fmt.Sprintf("Combined from %s and %s", a, b)
	}
	if el.Color == "" {
		el.Color = DefaultColor
	}
	return el
}

// Slug derives an element ID from its name: lowercased, whitespace runs replaced by "-".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Validate checks that the element is usable as a library entry.
func (e *Element) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("element name cannot be empty")
	}
	if e.ID == "" {
		return fmt.Errorf("element %q has no id", e.Name)
	}
	return nil
}

// InstanceState tracks whether a live instance is taking part in an in-flight combine.
type InstanceState string

const (
	// StateIdle instances can be dragged and selected as merge targets
	StateIdle InstanceState = "idle"

	// StatePending instances are waiting for a combine to resolve and are
	// excluded from merge-target selection
	StatePending InstanceState = "pending"
)

// Validate checks if the InstanceState is a valid enum value.
// The empty string is accepted and treated as idle.
func (s InstanceState) Validate() error {
	switch s {
	case "", StateIdle, StatePending:
		return nil
	default:
		return fmt.Errorf("unknown instance state: %q", s)
	}
}

// Instance is a live token placed on the workspace canvas.
type Instance struct {
	Element
	InstanceID string        `json:"instance_id"`     // Unique per placement, never reused
	X          float64       `json:"x"`               // Canvas-space position
	Y          float64       `json:"y"`               // Canvas-space position
	State      InstanceState `json:"state,omitempty"` // In-flight marker, never persisted as pending
}

// IsLoading reports whether the instance is awaiting a combine result.
func (i *Instance) IsLoading() bool {
	return i.State == StatePending
}

// Idle returns a copy of the instance with any in-flight marker cleared.
func (i Instance) Idle() Instance {
	i.State = StateIdle
	return i
}

// Result is the tagged outcome of a combination attempt.
// Element is nil whenever Success is false.
type Result struct {
	Success bool     `json:"success"`
	Element *Element `json:"element,omitempty"`
}

// Failure is the canonical unsuccessful result.
func Failure() Result {
	return Result{Success: false}
}

// Succeeded wraps an element in a successful result.
func Succeeded(el Element) Result {
	return Result{Success: true, Element: &el}
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (r Result) Clone() Result {
	if r.Element == nil {
		return Result{Success: r.Success}
	}
	el := *r.Element
	return Result{Success: r.Success, Element: &el}
}

// Validate checks the result's internal consistency.
func (r Result) Validate() error {
	if r.Success {
		if r.Element == nil {
			return fmt.Errorf("successful result has no element")
		}
		return r.Element.Validate()
	}
	return nil
}
