package query

import (
	"strings"

	"finder/internal/model"
)

// Filter returns, in snapshot order, every entry whose display name contains
// q case-insensitively. An empty q returns the snapshot's entries unchanged.
// The result may share storage with snap and must be treated as read-only.
func Filter(snap *model.Snapshot, q string) []model.PathEntry {
	if snap == nil {
		return nil
	}
	if q == "" {
		return snap.Entries
	}
	return filterEntries(snap.Entries, strings.ToLower(q))
}

func filterEntries(in []model.PathEntry, lowerQ string) []model.PathEntry {
	out := make([]model.PathEntry, 0, len(in)/8+1)
	for _, e := range in {
		if containsFold(e.Name, lowerQ) {
			out = append(out, e)
		}
	}
	return out
}

func containsFold(name string, lowerQ string) bool {
	return strings.Contains(strings.ToLower(name), lowerQ)
}

// Matches reports whether e would be returned by Filter for q.
func Matches(e model.PathEntry, q string) bool {
	return q == "" || containsFold(e.Name, strings.ToLower(q))
}

// Clamp re-clamps a selection index after the result set changed to n rows.
func Clamp(selected int, n int) int {
	if n <= 0 {
		return 0
	}
	if selected < 0 {
		return 0
	}
	if selected > n-1 {
		return n - 1
	}
	return selected
}

// Visible truncates results to the rows a viewport of height can show after
// reserving rows for chrome. maxRows caps the list when > 0. Results beyond
// the viewport are never paginated.
func Visible(results []model.PathEntry, height int, reserved int, maxRows int) []model.PathEntry {
	rows := height - reserved
	if height <= 0 {
		rows = maxRows
	}
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
	}
	if rows <= 0 {
		return nil
	}
	if len(results) > rows {
		return results[:rows]
	}
	return results
}

// Page applies offset/limit for non-interactive consumers. limit <= 0 means no limit.
func Page(results []model.PathEntry, offset int, limit int) []model.PathEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
