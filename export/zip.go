package export

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FixedTime is the modification time of every archive entry, so that the
// same project always exports to the same bytes.
var FixedTime = time.Unix(315532800, 0).UTC()

// SanitizePath turns p into a safe archive entry name: forward slashes, no
// drive letter, no leading slash, and "." or ".." segments folded without
// escaping the root.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	s = strings.ReplaceAll(s, `\`, "/")
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	var stack []string
	for _, part := range strings.Split(s, "/") {
		switch part {
		case "", ".":
		case "..":
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	if len(stack) == 0 {
		return "file"
	}
	return strings.Join(stack, "/")
}

// uniqueName appends -1, -2, ... before the extension until name is unused.
func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > strings.LastIndex(name, "/")+1 {
		base, ext = name[:i], name[i:]
	}
	for n := 1; ; n++ {
		alt := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !used[alt] {
			used[alt] = true
			return alt
		}
	}
}

func writeEntry(zw *zip.Writer, name string, data []byte, mode fs.FileMode) error {
	h := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: FixedTime}
	h.SetMode(mode)
	w, err := zw.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("export: write %s: %w", name, err)
	}
	return nil
}
