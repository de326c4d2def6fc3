// Package recipes holds the static recipe table: the hard-coded ingredient pairs
// that resolve instantly, plus the starter elements every library begins with.
package recipes

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/dyluth/crucible/pkg/alchemy"
	"gopkg.in/yaml.v3"
)

//go:embed recipes.yml
var defaultTable []byte

// Table is a read-only mapping from canonical combination keys to result templates.
type Table struct {
	recipes  map[alchemy.Key]alchemy.Template
	starters []alchemy.Element
}

type tableFile struct {
	Version  string                      `yaml:"version"`
	Starters []alchemy.Template          `yaml:"starters"`
	Recipes  map[string]alchemy.Template `yaml:"recipes"`
}

// Default returns the table compiled into the binary.
// The embedded file is validated by tests, so a parse failure here is a build defect.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded recipe table is invalid: %v", err))
	}
	return t
}

// Parse reads a recipe table from YAML.
// Keys are canonicalized; two keys that canonicalize to the same pair are an error,
// as are recipes or starters without a name.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse recipe table: %w", err)
	}
	if f.Version != "1.0" {
		return nil, fmt.Errorf("unsupported recipe table version: %q (expected: 1.0)", f.Version)
	}

	t := &Table{
		recipes:  make(map[alchemy.Key]alchemy.Template, len(f.Recipes)),
		starters: make([]alchemy.Element, 0, len(f.Starters)),
	}

	original := make(map[alchemy.Key]string, len(f.Recipes))
	for rawKey, tmpl := range f.Recipes {
		key, _, _, err := alchemy.ParseKey(rawKey)
		if err != nil {
			return nil, err
		}
		if tmpl.Name == "" {
			return nil, fmt.Errorf("recipe %q has no result name", rawKey)
		}
		if prev, exists := original[key]; exists {
			return nil, fmt.Errorf("recipes %q and %q both resolve to key %q", prev, rawKey, key)
		}
		original[key] = rawKey
		t.recipes[key] = tmpl
	}

	seen := make(map[string]bool, len(f.Starters))
	for i, s := range f.Starters {
		if s.Name == "" {
			return nil, fmt.Errorf("starter at index %d has no name", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate starter element %q", s.Name)
		}
		seen[s.Name] = true
		t.starters = append(t.starters, alchemy.Element{
			ID:          alchemy.Slug(s.Name),
			Name:        s.Name,
			Emoji:       s.Emoji,
			Description: s.Description,
			Color:       s.Color,
		})
	}

	return t, nil
}

// Lookup returns the result template for key, if the table has one.
func (t *Table) Lookup(key alchemy.Key) (alchemy.Template, bool) {
	tmpl, ok := t.recipes[key]
	return tmpl, ok
}

// Starters returns a copy of the starter element set in file order.
func (t *Table) Starters() []alchemy.Element {
	return append([]alchemy.Element(nil), t.starters...)
}

// Starter finds a starter element by name.
func (t *Table) Starter(name string) (alchemy.Element, bool) {
	for _, el := range t.starters {
		if el.Name == name {
			return el, true
		}
	}
	return alchemy.Element{}, false
}

// Keys returns every recipe key in lexicographic order.
func (t *Table) Keys() []alchemy.Key {
	keys := make([]alchemy.Key, 0, len(t.recipes))
	for k := range t.recipes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of recipes.
func (t *Table) Len() int {
	return len(t.recipes)
}
