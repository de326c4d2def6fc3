package alchemy

import (
	"fmt"
	"strings"
)

// KeySeparator joins the two ingredient names of a combination key.
const KeySeparator = "|"

// Key is the canonical, order-independent identifier of an ingredient pair.
type Key string

// CombinationKey builds the key for two ingredient names.
// The names are ordered lexicographically by byte value, so
// CombinationKey(a, b) == CombinationKey(b, a) for all a and b.
func CombinationKey(a, b string) Key {
	if b < a {
		a, b = b, a
	}
	return Key(a + KeySeparator + b)
}

// ParseKey splits a key into its two ingredient names and re-canonicalizes it.
// Returns an error if the key does not contain exactly one separator-delimited pair.
func ParseKey(s string) (Key, string, string, error) {
	parts := strings.Split(s, KeySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid combination key %q: expected <name>%s<name>", s, KeySeparator)
	}
	key := CombinationKey(parts[0], parts[1])
	first, second, _ := strings.Cut(string(key), KeySeparator)
	return key, first, second, nil
}

// CleanName trims name and replaces any KeySeparator in it with "/", so the
// name can be used as one side of a combination key.
func CleanName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, KeySeparator, "/"))
}

// isVerbatimKey reports whether s is a separator-joined key with more than two
// non-empty parts. Such keys were written for names containing the separator
// and cannot be re-canonicalized, but still identify one cached pair.
func isVerbatimKey(s string) bool {
	parts := strings.Split(s, KeySeparator)
	if len(parts) < 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Names returns the two ingredient names in canonical order.
func (k Key) Names() (string, string) {
	first, second, _ := strings.Cut(string(k), KeySeparator)
	return first, second
}

func (k Key) String() string {
	return string(k)
}
