// Package preview renders a stored project as one self-contained HTML
// document for the in-app iframe: local stylesheets and scripts are inlined,
// links between pages become ?page= links and broken images are fixed.
//
// The document is processed with the x/net/html tokenizer rather than a
// parsed tree so that malformed markup is passed through byte for byte.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/sitegen/sitefile"
)

var (
	// ErrNoPages is returned when the project has no HTML file.
	ErrNoPages = errors.New("preview: project has no html page")
	// ErrPageNotFound is returned for a requested page that does not exist.
	ErrPageNotFound = errors.New("preview: page not found")
)

// Pages lists the HTML paths of files in priority order.
func Pages(files []sitefile.FileRecord) []string {
	var out []string
	for _, f := range sitefile.SortByPriority(files) {
		if f.Type == sitefile.TypeHTML || strings.HasSuffix(strings.ToLower(f.Path), ".html") {
			out = append(out, f.Path)
		}
	}
	return out
}

// Render returns the preview document of page. An empty page selects the
// first page in priority order.
func Render(files []sitefile.FileRecord, page string) (string, error) {
	pages := Pages(files)
	if len(pages) == 0 {
		return "", ErrNoPages
	}
	byPath := make(map[string]string, len(files))
	for _, f := range files {
		byPath[f.Path] = f.Content
	}

	if page == "" {
		page = pages[0]
	} else {
		page = strings.TrimPrefix(path.Clean("/"+page), "/")
	}
	doc, ok := byPath[page]
	if !ok || !isHTMLPath(page, pages) {
		return "", fmt.Errorf("%w: %q", ErrPageNotFound, page)
	}

	r := renderer{files: byPath, pages: pages, dir: path.Dir(page)}
	var buf bytes.Buffer
	if err := r.render(&buf, doc); err != nil {
		return "", fmt.Errorf("preview: render %s: %w", page, err)
	}
	return sitefile.FixImageURLs(buf.String()), nil
}

func isHTMLPath(p string, pages []string) bool {
	for _, pg := range pages {
		if pg == p {
			return true
		}
	}
	return false
}

type renderer struct {
	files map[string]string
	pages []string
	dir   string
}

func (r *renderer) render(w *bytes.Buffer, doc string) error {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Link:
				if css, ok := r.stylesheet(tok); ok {
					fmt.Fprintf(w, "<style data-href=%q>\n%s\n</style>", attr(tok, "href"), css)
					continue
				}
			case atom.Script:
				if js, ok := r.script(tok); ok && tt == html.StartTagToken {
					setAttr(&tok, "src", "")
					w.WriteString(tok.String())
					w.WriteString("\n")
					w.WriteString(strings.ReplaceAll(js, "</script", `<\/script`))
					w.WriteString("\n")
					skipUntilEnd(z, atom.Script)
					w.WriteString("</script>")
					continue
				}
			case atom.A:
				if href, ok := r.pageLink(attr(tok, "href")); ok {
					setAttr(&tok, "href", href)
					w.WriteString(tok.String())
					continue
				}
			}
			w.Write(raw)
		default:
			w.Write(z.Raw())
		}
	}
}

func (r *renderer) stylesheet(tok html.Token) (string, bool) {
	if !strings.EqualFold(attr(tok, "rel"), "stylesheet") {
		return "", false
	}
	return r.local(attr(tok, "href"))
}

func (r *renderer) script(tok html.Token) (string, bool) {
	src := attr(tok, "src")
	if src == "" {
		return "", false
	}
	return r.local(src)
}

// pageLink maps an anchor href to a local page onto "?page=<path>".
func (r *renderer) pageLink(href string) (string, bool) {
	p, frag, ok := r.resolve(href)
	if !ok || !isHTMLPath(p, r.pages) {
		return "", false
	}
	out := "?page=" + url.QueryEscape(p)
	if frag != "" {
		out += "#" + frag
	}
	return out, true
}

func (r *renderer) local(ref string) (string, bool) {
	p, _, ok := r.resolve(ref)
	if !ok {
		return "", false
	}
	content, ok := r.files[p]
	return content, ok
}

// resolve turns a relative reference into a project path. External URLs,
// data URIs and pure fragments do not resolve.
func (r *renderer) resolve(ref string) (p, fragment string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", "", false
	}
	if strings.HasPrefix(u.Path, "/") {
		p = path.Clean(u.Path)
	} else {
		p = path.Clean(path.Join("/", r.dir, u.Path))
	}
	p = strings.TrimPrefix(p, "/")
	if strings.HasSuffix(u.Path, "/") || p == "" {
		p = path.Join(p, "index.html")
	}
	return p, u.Fragment, true
}

func skipUntilEnd(z *html.Tokenizer, a atom.Atom) {
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == a {
				return
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// setAttr replaces key's value, or removes the attribute when val is empty.
func setAttr(tok *html.Token, key, val string) {
	for i, a := range tok.Attr {
		if a.Key != key {
			continue
		}
		if val == "" {
			tok.Attr = append(tok.Attr[:i], tok.Attr[i+1:]...)
		} else {
			tok.Attr[i].Val = val
		}
		return
	}
}
