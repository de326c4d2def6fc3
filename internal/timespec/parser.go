// Package timespec parses the --since/--until flags used when listing snapshots.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse converts a time specification into Unix milliseconds.
// Accepted forms:
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//   - Go durations, meaning that long ago: "1h", "30m", "1h30m"
//   - whole days, meaning that long ago: "7d"
func Parse(spec string) (int64, error) {
	return ParseAt(spec, time.Now())
}

// ParseAt is Parse with an explicit reference time for relative specifications.
func ParseAt(spec string, now time.Time) (int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}

	if days, ok := strings.CutSuffix(spec, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n).UnixMilli(), nil
		}
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m', days like '7d' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseRange parses --since and --until together. Zero means no bound.
// Both bounds set requires since to be before until.
func ParseRange(since, until string) (int64, int64, error) {
	return ParseRangeAt(since, until, time.Now())
}

// ParseRangeAt is ParseRange with an explicit reference time.
func ParseRangeAt(since, until string, now time.Time) (int64, int64, error) {
	var sinceMs, untilMs int64
	var err error

	if since != "" {
		if sinceMs, err = ParseAt(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMs, err = ParseAt(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMs, untilMs, nil
}
