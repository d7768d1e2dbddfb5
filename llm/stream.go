package llm

import (
	"strings"

	"github.com/hazyhaar/sitegen/sitefile"
)

// StreamCollector parses a streamed answer as it arrives. Each fenced file
// block is added to the underlying sitefile.Collector as soon as its closing
// fence line is received, so an interrupted stream still yields every file
// that was finished.
//
// A StreamCollector is not safe for concurrent use.
type StreamCollector struct {
	c       *sitefile.Collector
	text    strings.Builder
	partial strings.Builder // current incomplete line
	scanner blockScanner
	onFile  func(sitefile.Draft)
}

// NewStreamCollector feeds c. onFile, when non-nil, is called for every
// draft the collector accepts.
func NewStreamCollector(c *sitefile.Collector, onFile func(sitefile.Draft)) *StreamCollector {
	if c == nil {
		c = &sitefile.Collector{}
	}
	s := &StreamCollector{c: c, onFile: onFile}
	s.scanner.emit = func(b fencedBlock) {
		s.add(sitefile.NewDraft(b.path, b.content, b.lang))
	}
	return s
}

// Feed appends a delta. Every line it completes is scanned exactly once.
func (s *StreamCollector) Feed(delta string) {
	s.text.WriteString(delta)
	for {
		i := strings.IndexByte(delta, '\n')
		if i < 0 {
			s.partial.WriteString(delta)
			return
		}
		s.partial.WriteString(delta[:i])
		s.scanner.line(s.partial.String())
		s.partial.Reset()
		delta = delta[i+1:]
	}
}

func (s *StreamCollector) add(d sitefile.Draft) {
	if s.c.Add(d) && s.onFile != nil {
		s.onFile(d)
	}
}

// Text returns everything fed so far.
func (s *StreamCollector) Text() string { return s.text.String() }

// Finish handles the end of a stream that completed normally: the last line
// is scanned, an unterminated last block is kept, and when no block was
// found at all the whole text is parsed with ParseFiles.
func (s *StreamCollector) Finish() {
	if s.partial.Len() > 0 {
		s.scanner.line(s.partial.String())
		s.partial.Reset()
	}
	s.scanner.eof()
	if s.c.Len() > 0 {
		return
	}
	drafts, err := ParseFiles(s.text.String())
	if err != nil {
		return
	}
	for _, d := range drafts {
		s.add(d)
	}
}

// Abort handles an interrupted stream. A closing fence still waiting for its
// newline completes its block; an unterminated block is dropped.
func (s *StreamCollector) Abort() {
	if s.partial.Len() > 0 && s.scanner.inBlock &&
		strings.TrimSpace(s.partial.String()) == s.scanner.fence {
		s.scanner.line(s.partial.String())
	}
	s.partial.Reset()
}

// Collector returns the underlying collector.
func (s *StreamCollector) Collector() *sitefile.Collector { return s.c }
