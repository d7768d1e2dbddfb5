package sitefile

import (
	"slices"
	"strings"
)

// Priority returns the deployment bucket of p, 1 (first) through 10 (last).
// Buckets are matched on the lower-cased path suffix.
func Priority(p string) int {
	lp := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lp, "index.html"):
		return 1
	case strings.HasSuffix(lp, "home.html"):
		return 2
	case strings.HasSuffix(lp, ".html"):
		return 3
	case hasAnySuffix(lp, "main.css", "style.css", "styles.css"):
		return 4
	case strings.HasSuffix(lp, ".css"):
		return 5
	case hasAnySuffix(lp, "main.js", "script.js", "scripts.js"):
		return 6
	case strings.HasSuffix(lp, ".js"):
		return 7
	case strings.HasSuffix(lp, "package.json"):
		return 8
	case hasAnySuffix(lp, "readme.md", "readme.txt"):
		return 9
	default:
		return 10
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// ComparePaths orders two paths by Priority, then case-insensitively, then
// byte-wise so that paths differing only in case still have a fixed order.
func ComparePaths(a, b string) int {
	if pa, pb := Priority(a), Priority(b); pa != pb {
		return pa - pb
	}
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortByPriority returns records in deployment order. The input slice is not
// modified and no record is dropped or duplicated.
func SortByPriority(records []FileRecord) []FileRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b FileRecord) int {
		return ComparePaths(a.Path, b.Path)
	})
	return out
}

// SortPaths sorts paths in place in deployment order.
func SortPaths(paths []string) {
	slices.SortStableFunc(paths, ComparePaths)
}
