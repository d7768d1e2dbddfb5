package sitefile

import (
	"path"
	"strings"
)

// Collector accumulates drafts emitted by a generation run. It keeps every
// accepted draft in arrival order, duplicates included; Dedupe decides later
// which version of a path survives.
//
// A Collector is not safe for concurrent use.
type Collector struct {
	records  []FileRecord
	rejected int
}

// Add records d and reports whether it was accepted. Drafts without content
// or with an empty path are rejected.
func (c *Collector) Add(d Draft) bool {
	if d.Content == nil {
		c.rejected++
		return false
	}
	p := CleanPath(d.Path)
	if p == "" {
		c.rejected++
		return false
	}
	c.records = append(c.records, FileRecord{
		Path:    p,
		Content: *d.Content,
		Type:    FileType(strings.TrimSpace(d.Type)),
		Size:    len(*d.Content),
	})
	return true
}

// AddAll adds every draft and returns how many were accepted.
func (c *Collector) AddAll(drafts []Draft) int {
	n := 0
	for _, d := range drafts {
		if c.Add(d) {
			n++
		}
	}
	return n
}

// Len returns the number of accepted drafts, duplicates included.
func (c *Collector) Len() int { return len(c.records) }

// Rejected returns the number of drafts dropped by Add.
func (c *Collector) Rejected() int { return c.rejected }

// Records returns a copy of the accepted records in arrival order. Type
// still holds the raw hint sent by the client.
func (c *Collector) Records() []FileRecord {
	out := make([]FileRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Reset discards everything collected so far.
func (c *Collector) Reset() {
	c.records = c.records[:0]
	c.rejected = 0
}

// CleanPath normalizes a generated file path to a slash-separated relative
// path: surrounding whitespace, backslashes, leading "./" and "/" are removed
// and ".." segments are resolved against the site root, never above it.
// It returns "" for paths that are empty after cleaning.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return p
}
