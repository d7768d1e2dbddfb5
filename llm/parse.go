package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hazyhaar/sitegen/sitefile"
)

// FilesSchema is the JSON schema of the files envelope a model may answer
// with. content is optional on purpose: a file without content is dropped
// by the collector instead of failing the whole answer.
const FilesSchema = `{
  "type": "object",
  "required": ["files"],
  "properties": {
    "files": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path"],
        "properties": {
          "path":    {"type": "string"},
          "content": {"type": "string"},
          "type":    {"type": "string"}
        }
      }
    }
  }
}`

var filesSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(FilesSchema))
	if err != nil {
		panic(err)
	}
	return s
}()

// ErrInvalidEnvelope wraps schema violations of a JSON files envelope.
var ErrInvalidEnvelope = errors.New("llm: invalid files envelope")

// ParseFiles extracts file drafts from a complete model answer. A JSON
// envelope {"files":[{path,content,type}]} is tried first, wherever it sits
// in the text; otherwise fenced code blocks labelled with a file name are
// used.
func ParseFiles(text string) ([]sitefile.Draft, error) {
	drafts, envErr := parseEnvelope(text)
	if envErr == nil && len(drafts) > 0 {
		return drafts, nil
	}
	blocks := scanBlocks(text)
	for _, b := range blocks {
		drafts = append(drafts, sitefile.NewDraft(b.path, b.content, b.lang))
	}
	if len(drafts) > 0 {
		return drafts, nil
	}
	if envErr != nil && !errors.Is(envErr, ErrNoFiles) {
		return nil, envErr
	}
	return nil, ErrNoFiles
}

type envelope struct {
	Files []sitefile.Draft `json:"files"`
}

func parseEnvelope(text string) ([]sitefile.Draft, error) {
	doc := jsonCandidate(text)
	if doc == "" {
		return nil, ErrNoFiles
	}
	if !json.Valid([]byte(doc)) {
		return nil, ErrNoFiles
	}
	res, err := filesSchema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvelope, strings.Join(msgs, "; "))
	}
	var env envelope
	if err := json.Unmarshal([]byte(doc), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env.Files, nil
}

var jsonFence = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n(\\{.*?\\})\\s*\\n```")

// jsonCandidate returns the most plausible JSON object in text: a fenced
// json block when there is one, else the span between the first '{' and
// the last '}'.
func jsonCandidate(text string) string {
	if m := jsonFence.FindStringSubmatch(text); m != nil && strings.Contains(m[1], `"files"`) {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	doc := text[start : end+1]
	if !strings.Contains(doc, `"files"`) {
		return ""
	}
	return doc
}

type fencedBlock struct {
	path    string
	lang    string
	content string
}

var (
	fileNameRe  = regexp.MustCompile(`^[\w][\w./-]*\.[A-Za-z0-9]{1,10}$`)
	labelLineRe = regexp.MustCompile("^\\s*(?:#{1,6}\\s+)?(?:\\d+[.)]\\s+)?(?:[*_`]{1,2})?(?:(?i:file(?:name)?|path)\\s*:\\s*)?(?:[*_`]{1,2})?([\\w][\\w./-]*\\.[A-Za-z0-9]{1,10})(?:[*_`]{1,2})?:?\\s*$")
	commentRe   = regexp.MustCompile(`^\s*(?://|#|<!--|/\*)\s*(?:(?i:file(?:name)?|path)\s*:\s*)?([\w][\w./-]*\.[A-Za-z0-9]{1,10})\s*(?:-->|\*/)?\s*$`)
)

// blockScanner recognizes fenced blocks one line at a time.
type blockScanner struct {
	label   string // file name seen on the last non-blank line
	inBlock bool
	fence   string
	cur     fencedBlock
	body    []string
	emit    func(fencedBlock)
}

func (s *blockScanner) line(line string) {
	line = strings.TrimSuffix(line, "\r")
	trimmed := strings.TrimSpace(line)
	switch {
	case !s.inBlock && strings.HasPrefix(trimmed, "```"):
		s.fence = trimmed[:countPrefix(trimmed, '`')]
		s.cur = parseInfo(strings.TrimSpace(trimmed[len(s.fence):]))
		if s.cur.path == "" {
			s.cur.path = s.label
		}
		s.inBlock = true
		s.body = s.body[:0]
	case s.inBlock && trimmed == s.fence:
		s.inBlock = false
		s.label = ""
		if b, ok := finishBlock(s.cur, s.body); ok {
			s.emit(b)
		}
	case s.inBlock:
		s.body = append(s.body, line)
	case trimmed != "":
		s.label = ""
		if m := labelLineRe.FindStringSubmatch(trimmed); m != nil {
			s.label = m[1]
		}
	}
}

// eof closes an unterminated block.
func (s *blockScanner) eof() {
	if !s.inBlock {
		return
	}
	s.inBlock = false
	if b, ok := finishBlock(s.cur, s.body); ok {
		s.emit(b)
	}
}

// scanBlocks returns the fenced blocks of text that carry a file name. An
// unterminated last block runs to the end of text.
func scanBlocks(text string) []fencedBlock {
	var out []fencedBlock
	s := blockScanner{emit: func(b fencedBlock) { out = append(out, b) }}
	for _, l := range strings.Split(text, "\n") {
		s.line(l)
	}
	s.eof()
	return out
}

func finishBlock(b fencedBlock, body []string) (fencedBlock, bool) {
	if b.path == "" && len(body) > 0 {
		if m := commentRe.FindStringSubmatch(body[0]); m != nil {
			b.path = m[1]
		}
	}
	if b.path == "" {
		return b, false
	}
	b.content = strings.Join(body, "\n")
	if b.content != "" {
		b.content += "\n"
	}
	return b, true
}

// parseInfo reads the info string of a fence: "html", "html index.html",
// "index.html", `css file="style.css"`.
func parseInfo(info string) fencedBlock {
	var b fencedBlock
	for _, tok := range strings.Fields(info) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			switch strings.ToLower(k) {
			case "file", "path", "filename", "name", "title":
				b.path = strings.Trim(v, `"'`)
			}
			continue
		}
		tok = strings.Trim(tok, `"'`)
		if fileNameRe.MatchString(tok) {
			b.path = tok
			continue
		}
		if b.lang == "" {
			b.lang = tok
		}
	}
	return b
}

func countPrefix(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}
