// Package catalog renders recipes, cached combinations and snapshots for the CLI.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/crucible/internal/recipes"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/olekukonko/tablewriter"
)

// OutputFormat specifies how listings are written.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated descriptions
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault, "table":
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (use 'default' or 'jsonl')", s)
	}
}

// Entry is one resolved combination: a recipe or a cached result.
type Entry struct {
	Key    alchemy.Key    `json:"key"`
	Result alchemy.Result `json:"result"`
}

// RecipeEntries lists the recipe table as entries in key order.
func RecipeEntries(t *recipes.Table) []Entry {
	keys := t.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		tmpl, _ := t.Lookup(k)
		a, b := k.Names()
		out = append(out, Entry{Key: k, Result: alchemy.Succeeded(tmpl.Materialize(a, b))})
	}
	return out
}

// CacheEntries lists cached results in key order, keeping only keys matching glob.
// An empty glob matches everything; a malformed glob matches nothing.
func CacheEntries(entries map[alchemy.Key]alchemy.Result, glob string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, k := range alchemy.SortedKeys(entries) {
		if glob != "" {
			matched, err := filepath.Match(glob, k.String())
			if err != nil || !matched {
				continue
			}
		}
		out = append(out, Entry{Key: k, Result: entries[k]})
	}
	return out
}

// FormatEntries writes entries in the requested format. title heads the table.
func FormatEntries(w io.Writer, entries []Entry, title string, format OutputFormat) error {
	switch format {
	case OutputFormatJSONL:
		return FormatJSONL(w, entries)
	case OutputFormatDefault:
		return formatEntryTable(w, entries, title)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func formatEntryTable(w io.Writer, entries []Entry, title string) error {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No %s found\n", title)
		return nil
	}

	fmt.Fprintf(w, "%s:\n\n", capitalize(title))

	table := tablewriter.NewWriter(w)
	table.Header("INGREDIENTS", "RESULT", "DESCRIPTION")
	for _, e := range entries {
		a, b := e.Key.Names()
		if err := table.Append([]string{
			fmt.Sprintf("%s + %s", a, b),
			formatResult(e.Result),
			formatDescription(e.Result),
		}); err != nil {
			return fmt.Errorf("failed to build table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(w, "\n%s found\n", plural(len(entries), "combination"))
	return nil
}

// FormatSnapshots writes snapshots newest first.
func FormatSnapshots(w io.Writer, snaps []snapshot.Snapshot, format OutputFormat) error {
	switch format {
	case OutputFormatJSONL:
		return FormatJSONL(w, snaps)
	case OutputFormatDefault:
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots found")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-24s %-8s %s\n", "ID", "NAME", "AGE", "ELEMENTS")
	fmt.Fprintf(w, "%-10s %-24s %-8s %s\n", "----------", "------------------------", "--------", "--------")
	for _, s := range snaps {
		fmt.Fprintf(w, "%-10s %-24s %-8s %d\n",
			formatID(s.ID),
			truncate(s.Name, 24),
			formatAge(s.TimestampMs, time.Now()),
			len(s.Elements),
		)
	}

	fmt.Fprintf(w, "\n%s found\n", plural(len(snaps), "snapshot"))
	return nil
}

// FormatJSONL writes each record as a single JSON line.
func FormatJSONL[T any](w io.Writer, records []T) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes v as indented JSON followed by a newline.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatResult(r alchemy.Result) string {
	if !r.Success || r.Element == nil {
		return "✗ (no result)"
	}
	return strings.TrimSpace(r.Element.Emoji + " " + r.Element.Name)
}

func formatDescription(r alchemy.Result) string {
	if !r.Success || r.Element == nil || r.Element.Description == "" {
		return "-"
	}
	return truncate(r.Element.Description, 40)
}

// formatID truncates an ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders a Unix millisecond timestamp as "5m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
