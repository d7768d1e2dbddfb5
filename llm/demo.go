package llm

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"
)

// Demo is an offline provider producing a small deterministic site from
// the prompt. It streams its answer in ChunkSize pieces, waiting Delay
// between them, so it behaves like a real provider under timeouts.
type Demo struct {
	ChunkSize int
	Delay     time.Duration
}

func (d *Demo) Name() string { return "demo" }

func (d *Demo) Complete(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
	prompt := ""
	if n := len(req.Messages); n > 0 {
		prompt = req.Messages[n-1].Content
	}
	var answer string
	switch req.System {
	case EnhanceSystemPrompt:
		answer = demoBrief(prompt)
	case ModifySystemPrompt:
		answer = demoModify(prompt)
	default:
		answer = demoSite(prompt)
	}

	size := d.ChunkSize
	if size <= 0 {
		size = 64
	}
	out := &Completion{Provider: d.Name(), Model: "demo-1", StopReason: "end_turn"}
	var sent strings.Builder
	for len(answer) > 0 {
		n := min(size, len(answer))
		chunk := answer[:n]
		answer = answer[n:]
		if d.Delay > 0 {
			t := time.NewTimer(d.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				out.Text = sent.String()
				return out, ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			out.Text = sent.String()
			return out, err
		}
		sent.WriteString(chunk)
		if onDelta != nil {
			onDelta(chunk)
		}
	}
	out.Text = sent.String()
	out.OutputTokens = len(out.Text) / 4
	return out, nil
}

func demoTitle(prompt string) string {
	words := strings.FieldsFunc(prompt, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if len(words) > 4 {
		words = words[:4]
	}
	if len(words) == 0 {
		return "My Website"
	}
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func demoBrief(prompt string) string {
	return fmt.Sprintf("A modern, responsive website for %q. Pages: a home page with a hero banner, "+
		"an about section, a services section and a contact form. Tone: warm and professional. "+
		"Palette: deep blue, white and a warm accent.", strings.TrimSpace(prompt))
}

func demoSite(prompt string) string {
	title := html.EscapeString(demoTitle(prompt))
	desc := html.EscapeString(strings.TrimSpace(prompt))
	var b strings.Builder
	b.WriteString("Here is your website.\n\n")
	b.WriteString("```html index.html\n")
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <header class="hero" style="background-image: url('assets/images/hero-banner.jpg')">
    <h1>%s</h1>
    <p>%s</p>
    <a class="button" href="about.html">Learn more</a>
  </header>
  <main>
    <section id="services">
      <h2>What we do</h2>
      <img src="assets/images/team-photo.jpg" alt="Our team">
    </section>
  </main>
  <script src="script.js"></script>
</body>
</html>
`, title, title, desc)
	b.WriteString("```\n\n")
	b.WriteString("```html about.html\n")
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>About - %s</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <h1>About %s</h1>
  <img src="./assets/images/profile.png" alt="Founder">
  <p><a href="index.html">Back home</a></p>
</body>
</html>
`, title, title)
	b.WriteString("```\n\n")
	b.WriteString("```css style.css\n")
	b.WriteString(demoCSS("#1e3a8a"))
	b.WriteString("```\n\n")
	b.WriteString("```javascript script.js\n")
	b.WriteString(`document.addEventListener("DOMContentLoaded", () => {
  document.querySelectorAll("a.button").forEach((a) => a.classList.add("ready"));
});
`)
	b.WriteString("```\n")
	return b.String()
}

func demoCSS(accent string) string {
	return fmt.Sprintf(`:root { --accent: %s; }
body { margin: 0; font-family: system-ui, sans-serif; color: #0f172a; }
.hero { padding: 6rem 2rem; color: #fff; background: var(--accent) center / cover no-repeat; text-align: center; }
.button { display: inline-block; padding: .75rem 1.5rem; background: #fff; color: var(--accent); border-radius: .5rem; }
section { max-width: 60rem; margin: 3rem auto; padding: 0 1rem; }
img { max-width: 100%%; border-radius: .5rem; }
`, accent)
}

// demoModify answers with a new style.css carrying the request as a comment.
func demoModify(prompt string) string {
	change := prompt
	if _, after, ok := strings.Cut(prompt, "REQUESTED CHANGE"); ok {
		change = after
	}
	change = strings.ReplaceAll(strings.TrimSpace(change), "*/", "")
	accent := "#1e3a8a"
	if strings.Contains(strings.ToLower(change), "red") {
		accent = "#b91c1c"
	}
	return "Updated styles.\n\n```css style.css\n/* " + change + " */\n" + demoCSS(accent) + "```\n"
}
