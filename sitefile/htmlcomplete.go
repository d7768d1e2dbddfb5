package sitefile

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// trivialHTMLLength is the trimmed length under which content is
	// replaced by PlaceholderDocument.
	trivialHTMLLength = 50

	// completeHTMLLength is the length above which a structurally complete
	// document is returned untouched.
	completeHTMLLength = 200
)

// PlaceholderTitle is the <title> of PlaceholderDocument.
const PlaceholderTitle = "Welcome"

// PlaceholderDocument replaces empty or trivial HTML output.
const PlaceholderDocument = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>` + PlaceholderTitle + `</title>
  <style>
    body { font-family: system-ui, -apple-system, "Segoe UI", sans-serif; margin: 0; padding: 2rem; background: #f8fafc; color: #0f172a; }
    main { max-width: 40rem; margin: 4rem auto; text-align: center; }
    h1 { font-size: 2.5rem; margin-bottom: 1rem; }
    p { color: #475569; line-height: 1.6; }
  </style>
</head>
<body>
  <main>
    <h1>Welcome</h1>
    <p>This page is a placeholder. Describe the website you want and generate again to replace it.</p>
  </main>
</body>
</html>
`

const defaultHeadBlock = `<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Generated Website</title>
</head>`

const defaultBodyContent = `  <h1>Welcome</h1>
  <p>This website was generated automatically.</p>`

var (
	reDoctype   = regexp.MustCompile(`(?i)<!doctype\s+html[^>]*>`)
	reHTMLOpen  = regexp.MustCompile(`(?i)<html(?:\s[^>]*)?>`)
	reHTMLClose = regexp.MustCompile(`(?i)</html\s*>`)
	reHeadOpen  = regexp.MustCompile(`(?i)<head(?:\s[^>]*)?>`)
	reHeadClose = regexp.MustCompile(`(?i)</head\s*>`)
	reBodyOpen  = regexp.MustCompile(`(?i)<body(?:\s[^>]*)?>`)
	reBodyClose = regexp.MustCompile(`(?i)</body\s*>`)
	reLangAttr  = regexp.MustCompile(`(?i)\slang\s*=`)
)

// Structure holds the four structural predicates of an HTML document.
type Structure struct {
	Doctype bool `json:"doctype"`
	HTML    bool `json:"html"` // <html ...> and </html>
	Head    bool `json:"head"` // <head ...> and </head>
	Body    bool `json:"body"` // <body ...> and </body>
}

// Complete reports whether all four predicates hold.
func (s Structure) Complete() bool {
	return s.Doctype && s.HTML && s.Head && s.Body
}

// CheckStructure evaluates the structural predicates with plain pattern
// matching. It never parses the document, so malformed markup is tolerated.
func CheckStructure(content string) Structure {
	return Structure{
		Doctype: reDoctype.MatchString(content),
		HTML:    reHTMLOpen.MatchString(content) && reHTMLClose.MatchString(content),
		Head:    reHeadOpen.MatchString(content) && reHeadClose.MatchString(content),
		Body:    reBodyOpen.MatchString(content) && reBodyClose.MatchString(content),
	}
}

// CompleteHTML returns content as a structurally complete HTML document.
//
// Trivial input (under 50 characters once trimmed, with no doctype, html,
// head or body tag to build on) is replaced by PlaceholderDocument. A
// complete document longer than 200 characters is returned as is. Anything
// else is repaired by inserting the missing scaffolding at fixed anchors:
// doctype first, then the html element, the head block after <html>, <body>
// after </head> and finally the closing tags. Existing markup is never
// removed or reordered. A repair step whose anchor cannot be found is
// skipped.
func CompleteHTML(content string) string {
	if isTrivialHTML(content) {
		return PlaceholderDocument
	}
	if CheckStructure(content).Complete() && utf8.RuneCountInString(content) > completeHTMLLength {
		return content
	}

	out := content
	if !reDoctype.MatchString(out) {
		out = "<!DOCTYPE html>\n" + out
	}
	out = ensureHTMLElement(out)
	out = ensureHead(out)
	out = ensureBody(out)
	out = ensureClosingTags(out)
	return out
}

func isTrivialHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) >= trivialHTMLLength {
		return false
	}
	return !reDoctype.MatchString(trimmed) &&
		!reHTMLOpen.MatchString(trimmed) &&
		!reHeadOpen.MatchString(trimmed) &&
		!reBodyOpen.MatchString(trimmed)
}

func ensureHTMLElement(s string) string {
	if open := reHTMLOpen.FindStringIndex(s); open != nil {
		if tag := s[open[0]:open[1]]; !reLangAttr.MatchString(tag) {
			at := open[0] + len("<html")
			s = s[:at] + ` lang="en"` + s[at:]
		}
	} else if dt := reDoctype.FindStringIndex(s); dt != nil {
		s = s[:dt[1]] + "\n<html lang=\"en\">" + s[dt[1]:]
	}
	if !reHTMLClose.MatchString(s) {
		s += "\n</html>"
	}
	return s
}

func ensureHead(s string) string {
	open := reHeadOpen.FindStringIndex(s)
	if open == nil {
		html := reHTMLOpen.FindStringIndex(s)
		if html == nil {
			return s
		}
		return s[:html[1]] + "\n" + defaultHeadBlock + s[html[1]:]
	}
	if reHeadClose.MatchString(s) {
		return s
	}
	return closeHead(s, open[1])
}

// closeHead inserts </head> for a head element opened at headEnd: before the
// first <body> that follows it, else before </html>, else at the end.
func closeHead(s string, headEnd int) string {
	if loc := reBodyOpen.FindStringIndex(s[headEnd:]); loc != nil {
		at := headEnd + loc[0]
		return s[:at] + "</head>\n" + s[at:]
	}
	if loc := reHTMLClose.FindStringIndex(s[headEnd:]); loc != nil {
		at := headEnd + loc[0]
		return s[:at] + "</head>\n" + s[at:]
	}
	return s + "\n</head>"
}

func ensureBody(s string) string {
	if reBodyOpen.MatchString(s) {
		return s
	}
	hc := reHeadClose.FindStringIndex(s)
	if hc == nil {
		return s
	}
	rest := s[hc[1]:]
	if loc := reHTMLClose.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	insert := "\n<body>"
	if strings.TrimSpace(rest) == "" {
		insert += "\n" + defaultBodyContent
	}
	return s[:hc[1]] + insert + s[hc[1]:]
}

func ensureClosingTags(s string) string {
	if !reBodyClose.MatchString(s) {
		if all := reHTMLClose.FindAllStringIndex(s, -1); len(all) > 0 {
			at := all[len(all)-1][0]
			s = s[:at] + "</body>\n" + s[at:]
		} else {
			s += "\n</body>"
		}
	}
	if open := reHeadOpen.FindStringIndex(s); open != nil && !reHeadClose.MatchString(s) {
		s = closeHead(s, open[1])
	}
	if !reHTMLClose.MatchString(s) {
		s += "\n</html>"
	}
	return s
}
