package llm

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/sitegen/sitefile"
)

// GenerateSystemPrompt instructs the model to write a complete static site.
const GenerateSystemPrompt = `You are an expert web designer and front-end developer.
Build a complete, modern, responsive static website from the user's description.

Output rules:
- Write every file as a fenced code block whose info string is the language followed by the file path, for example:
  ` + "```html index.html" + `
- Always include index.html. Put shared styles in style.css and scripts in script.js.
- Every HTML page is a full document with <!DOCTYPE html>, <html lang="...">, <head> and <body>.
- Use only plain HTML, CSS and vanilla JavaScript. No build step, no frameworks that need compilation.
- Do not reference local binary assets. Use remote image URLs or CSS gradients.
- Do not write anything after the last code block.`

// ModifySystemPrompt instructs the model to edit an existing site.
const ModifySystemPrompt = `You are an expert front-end developer editing an existing static website.
The current files are given below. Apply the user's requested change.

Output rules:
- Output ONLY the files you change or add, each as a complete file in a fenced code block whose info string is the language followed by the file path, for example:
  ` + "```css style.css" + `
- Never output partial files or diffs. Files you do not output are kept unchanged.
- Keep the existing structure, file names and style unless the change requires otherwise.`

// EnhanceSystemPrompt turns a short idea into a detailed website brief.
const EnhanceSystemPrompt = `You rewrite short website ideas into detailed briefs for a web designer.
Describe the purpose, target audience, pages and sections, tone, color palette and key content.
Answer with the brief only, in the language of the idea, in at most 200 words. No preamble, no markdown headings.`

// DefaultContextBudget bounds the bytes of current files sent with a modify
// request.
const DefaultContextBudget = 120_000

// BuildModifyPrompt renders the user turn of a modify request: the current
// files in priority order until budget bytes are used, the paths of the
// files left out, then the instruction.
func BuildModifyPrompt(instruction string, files []sitefile.FileRecord, budget int) string {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	var b strings.Builder
	b.WriteString("CURRENT FILES\n\n")
	used := 0
	var omitted []string
	for _, f := range sitefile.SortByPriority(files) {
		if used+f.Size > budget {
			omitted = append(omitted, f.Path)
			continue
		}
		used += f.Size
		fmt.Fprintf(&b, "```%s %s\n%s", fenceLang(f), f.Path, f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("```\n\n")
	}
	if len(omitted) > 0 {
		b.WriteString("Other existing files (content omitted): ")
		b.WriteString(strings.Join(omitted, ", "))
		b.WriteString("\n\n")
	}
	b.WriteString("REQUESTED CHANGE\n\n")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteByte('\n')
	return b.String()
}

func fenceLang(f sitefile.FileRecord) string {
	switch f.Type {
	case sitefile.TypeHTML:
		return "html"
	case sitefile.TypeCSS:
		return "css"
	case sitefile.TypeJavaScript:
		return "javascript"
	case sitefile.TypeTypeScript:
		return "typescript"
	case sitefile.TypeJSON:
		return "json"
	case sitefile.TypeMarkdown:
		return "markdown"
	}
	return "text"
}
