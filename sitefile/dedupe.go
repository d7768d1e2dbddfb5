package sitefile

import "strings"

// Dedupe returns one record per unique path.
//
// When several records share a path the one with the longest Content wins.
// On equal length the later record wins, so a model that re-emits a file
// with the same size but corrected text is honoured. The output keeps the
// position of the first occurrence of each path. Records with an empty path
// are dropped.
func Dedupe(records []FileRecord) []FileRecord {
	index := make(map[string]int, len(records))
	out := make([]FileRecord, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Path) == "" {
			continue
		}
		i, seen := index[r.Path]
		if !seen {
			index[r.Path] = len(out)
			out = append(out, r)
			continue
		}
		if len(r.Content) >= len(out[i].Content) {
			out[i] = r
		}
	}
	return out
}
