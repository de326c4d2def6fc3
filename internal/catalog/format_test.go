package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/crucible/internal/recipes"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"", "default", "table"} {
		f, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, OutputFormatDefault, f)
	}

	f, err := ParseFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseFormat("xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestRecipeEntries(t *testing.T) {
	table := recipes.Default()
	entries := RecipeEntries(table)
	require.Len(t, entries, table.Len())

	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Key, entries[i].Key)
	}
	for _, e := range entries {
		require.True(t, e.Result.Success)
		assert.NotEmpty(t, e.Result.Element.ID)
	}
}

func TestCacheEntries(t *testing.T) {
	sunset := alchemy.Succeeded(alchemy.Element{ID: "sunset", Name: "Sunset", Emoji: "🌅"})
	cached := map[alchemy.Key]alchemy.Result{
		"Cloud|Fire": sunset,
		"Void|Void":  alchemy.Failure(),
		"Fire|Time":  sunset,
	}

	all := CacheEntries(cached, "")
	require.Len(t, all, 3)
	assert.Equal(t, alchemy.Key("Cloud|Fire"), all[0].Key)

	fire := CacheEntries(cached, "*Fire*")
	assert.Len(t, fire, 2)

	assert.Empty(t, CacheEntries(cached, "[bad"))
}

func TestFormatEntries_Table(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Key: "Fire|Water", Result: alchemy.Succeeded(alchemy.Element{Name: "Steam", Emoji: "💨", Description: "Hot gas."})},
		{Key: "Void|Void", Result: alchemy.Failure()},
	}

	require.NoError(t, FormatEntries(&buf, entries, "cached combinations", OutputFormatDefault))
	out := buf.String()
	assert.Contains(t, out, "Cached combinations:")
	assert.Contains(t, out, "Fire + Water")
	assert.Contains(t, out, "Steam")
	assert.Contains(t, out, "Hot gas.")
	assert.Contains(t, out, "(no result)")
	assert.Contains(t, out, "2 combinations found")
}

func TestFormatEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatEntries(&buf, nil, "cached combinations", OutputFormatDefault))
	assert.Equal(t, "No cached combinations found\n", buf.String())
}

func TestFormatEntries_JSONL(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{
		{Key: "Fire|Water", Result: alchemy.Succeeded(alchemy.Element{ID: "steam", Name: "Steam"})},
		{Key: "Void|Void", Result: alchemy.Failure()},
	}
	require.NoError(t, FormatEntries(&buf, entries, "recipes", OutputFormatJSONL))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Steam", first.Result.Element.Name)
	assert.JSONEq(t, `{"key":"Void|Void","result":{"success":false}}`, lines[1])

	assert.Error(t, FormatEntries(&buf, entries, "x", "xml"))
}

func TestFormatSnapshots(t *testing.T) {
	snaps := []snapshot.Snapshot{
		{
			ID:          "0123456789-abcdef",
			Name:        strings.Repeat("n", 30),
			TimestampMs: time.Now().Add(-5 * time.Minute).UnixMilli(),
			Elements:    make([]alchemy.Instance, 3),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, FormatSnapshots(&buf, snaps, OutputFormatDefault))
	out := buf.String()
	assert.Contains(t, out, "01234567 ")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, strings.Repeat("n", 21)+"...")
	assert.Contains(t, out, "5m ago")
	assert.Contains(t, out, "1 snapshot found")

	buf.Reset()
	require.NoError(t, FormatSnapshots(&buf, nil, OutputFormatDefault))
	assert.Equal(t, "No snapshots found\n", buf.String())

	buf.Reset()
	require.NoError(t, FormatSnapshots(&buf, snaps, OutputFormatJSONL))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 30 * time.Second, want: "30s ago"},
		{ago: 5 * time.Minute, want: "5m ago"},
		{ago: 3 * time.Hour, want: "3h ago"},
		{ago: 50 * time.Hour, want: "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(now.Add(-tt.ago).UnixMilli(), now))
	}
	assert.Equal(t, "-", formatAge(0, now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "💧💧...", truncate("💧💧💧💧💧💧", 5), "counts runes, not bytes")
}

func TestFormatSingleJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatSingleJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
