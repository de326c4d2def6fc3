package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// MinShortIDLength is the minimum accepted length for short ID prefixes.
const MinShortIDLength = 6

// maxListedMatches caps how many IDs FormatAmbiguousError prints.
const maxListedMatches = 10

// NotFoundError indicates no snapshot matched the ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no snapshots found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several snapshots matched a short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d snapshots", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching IDs for display, up to ten of them.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d snapshots:\n", err.ShortID, len(err.Matches))

	shown := err.Matches
	if len(shown) > maxListedMatches {
		shown = shown[:maxListedMatches]
	}
	for _, id := range shown {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if extra := len(err.Matches) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "  ...and %d more\n", extra)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the snapshot.")
	return b.String()
}

// IsNotFoundError reports whether err is or wraps a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguousError reports whether err is or wraps an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}
