// Package sitefile reconciles the files produced by a site generation run.
//
// A generation emits file drafts incrementally (streamed chunks) or as one
// batch. Before they are persisted or exported the drafts go through a fixed
// sequence of pure transformations:
//
//	Collector → Dedupe → NormalizeType → CompleteHTML → FixImageURLs → SortByPriority
//
// Reconcile composes the whole sequence. Every stage is also exported on its
// own so callers can, for instance, run FixImageURLs over legacy stored HTML.
//
// Nothing in this package blocks, allocates goroutines or returns errors:
// malformed input degrades to a safe default (placeholder HTML, TEXT type,
// generic image, alphabetical order).
package sitefile

// FileType is the canonical file type stored alongside a project file.
type FileType string

const (
	TypeHTML       FileType = "HTML"
	TypeCSS        FileType = "CSS"
	TypeJavaScript FileType = "JAVASCRIPT"
	TypeTypeScript FileType = "TYPESCRIPT"
	TypeJSON       FileType = "JSON"
	TypeMarkdown   FileType = "MARKDOWN"
	TypeText       FileType = "TEXT"
	TypeImage      FileType = "IMAGE" // never persisted, see StorageType
	TypeOther      FileType = "OTHER"
)

// FileRecord is one generated file flowing through the pipeline.
type FileRecord struct {
	Path    string   `json:"path"`
	Content string   `json:"content"`
	Type    FileType `json:"type"`
	Size    int      `json:"size"`
}

// New builds a FileRecord with Size derived from content.
func New(path, content string, typ FileType) FileRecord {
	return FileRecord{Path: path, Content: content, Type: typ, Size: len(content)}
}

// WithContent returns a copy of r carrying content, with Size recomputed.
func (r FileRecord) WithContent(content string) FileRecord {
	r.Content = content
	r.Size = len(content)
	return r
}

// Draft is a file as emitted by a generation client, before validation.
// A nil Content means the client never sent a content field; such drafts are
// rejected, while an explicit empty string is a valid (empty) file.
type Draft struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
	Type    string  `json:"type,omitempty"`
}

// NewDraft is a convenience constructor for a draft with defined content.
func NewDraft(path, content, typeHint string) Draft {
	return Draft{Path: path, Content: &content, Type: typeHint}
}
