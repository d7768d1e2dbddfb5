package sitefile

import (
	"path"
	"strings"
)

// extensionTypes is the complete extension table. Anything missing is TEXT.
var extensionTypes = map[string]FileType{
	"html":     TypeHTML,
	"htm":      TypeHTML,
	"css":      TypeCSS,
	"js":       TypeJavaScript,
	"jsx":      TypeJavaScript,
	"ts":       TypeTypeScript,
	"tsx":      TypeTypeScript,
	"json":     TypeJSON,
	"md":       TypeMarkdown,
	"markdown": TypeMarkdown,
	"png":      TypeImage,
	"jpg":      TypeImage,
	"jpeg":     TypeImage,
	"gif":      TypeImage,
	"svg":      TypeImage,
	"txt":      TypeText,
}

// hintTypes maps free-form type names sent by generation clients.
var hintTypes = map[string]FileType{
	"html":       TypeHTML,
	"htm":        TypeHTML,
	"css":        TypeCSS,
	"javascript": TypeJavaScript,
	"js":         TypeJavaScript,
	"jsx":        TypeJavaScript,
	"typescript": TypeTypeScript,
	"ts":         TypeTypeScript,
	"tsx":        TypeTypeScript,
	"json":       TypeJSON,
	"markdown":   TypeMarkdown,
	"md":         TypeMarkdown,
	"text":       TypeText,
	"txt":        TypeText,
	"plain":      TypeText,
	"image":      TypeImage,
	"img":        TypeImage,
	"other":      TypeOther,
}

var mimeTypes = map[string]FileType{
	"text/html":              TypeHTML,
	"text/css":               TypeCSS,
	"text/javascript":        TypeJavaScript,
	"application/javascript": TypeJavaScript,
	"application/typescript": TypeTypeScript,
	"application/json":       TypeJSON,
	"text/markdown":          TypeMarkdown,
	"text/plain":             TypeText,
}

// TypeFromPath infers the canonical type from the extension of p.
// Unknown or missing extensions yield TEXT.
func TypeFromPath(p string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeText
}

// NormalizeType maps a hint to the canonical enumeration. The hint may be a
// type name ("html", "JavaScript"), a MIME type ("text/css", "image/png") or
// a file path ("site/app.tsx"). Matching is case-insensitive and anything
// unrecognized falls back to TEXT.
func NormalizeType(hint string) FileType {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return TypeText
	}
	if t, ok := lookupHint(h); ok {
		return t
	}
	return TypeFromPath(h)
}

// ResolveType picks the canonical type for a record: a recognized declared
// hint wins, otherwise the type is inferred from the path.
func ResolveType(hint, p string) FileType {
	h := strings.ToLower(strings.TrimSpace(hint))
	if t, ok := lookupHint(h); ok {
		return t
	}
	return TypeFromPath(p)
}

func lookupHint(h string) (FileType, bool) {
	if h == "" {
		return "", false
	}
	if t, ok := hintTypes[h]; ok {
		return t, true
	}
	if strings.HasPrefix(h, "image/") {
		return TypeImage, true
	}
	mt, _, _ := strings.Cut(h, ";")
	if t, ok := mimeTypes[strings.TrimSpace(mt)]; ok {
		return t, true
	}
	return "", false
}

// StorageType converts a canonical type to one the persistence schema
// accepts. The schema has no IMAGE variant: image entries are stored as
// OTHER. This is the only place where such a remap happens.
func StorageType(t FileType) FileType {
	if t == TypeImage {
		return TypeOther
	}
	return t
}
