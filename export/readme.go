package export

import (
	"html"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/aymerick/raymond"
)

const maxOutlineLines = 30

var readmeTemplate = raymond.MustParse(`# {{{name}}}

{{#if description}}
{{{description}}}

{{/if}}
This static website was generated with sitegen.
{{#if prompt}}
It was built from the prompt:

> {{{prompt}}}
{{/if}}

## Pages

{{#each pages}}
- [{{{title}}}]({{{path}}})
{{/each}}
{{#if outline}}

## Outline of the home page

{{{outline}}}
{{/if}}

## Files

| Path | Type | Size |
| --- | --- | --- |
{{#each files}}
| {{{path}}} | {{{type}}} | {{size}} |
{{/each}}

## Deploy

- Netlify: run ` + "`netlify deploy --prod --dir .`" + `, netlify.toml is included.
- Vercel: run ` + "`vercel --prod`" + `, vercel.json is included.
- GitHub Pages: push to the main branch, .github/workflows/pages.yml publishes the site.
- Any web server: ` + "`./deploy.sh /var/www/{{{slug}}}`" + ` copies the files.
`)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

func renderReadme(info siteInfo) ([]byte, error) {
	files := make([]map[string]any, len(info.Files))
	for i, f := range info.Files {
		files[i] = map[string]any{"path": f.Path, "type": string(f.Type), "size": f.Size}
	}
	pages := make([]map[string]any, len(info.Pages))
	for i, p := range info.Pages {
		pages[i] = map[string]any{"path": p.Path, "title": p.Title}
	}
	out, err := readmeTemplate.Exec(map[string]any{
		"name":        info.Name,
		"slug":        info.Slug,
		"description": info.Description,
		"prompt":      strings.ReplaceAll(info.Prompt, "\n", "\n> "),
		"pages":       pages,
		"files":       files,
		"outline":     outline(info.Index),
	})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// outline converts a page to markdown and keeps its headings as a nested
// list. Conversion failures yield no outline.
func outline(doc string) string {
	if strings.TrimSpace(doc) == "" {
		return ""
	}
	md, err := mdConverter.ConvertString(doc)
	if err != nil {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimLeft(line, "#")
		level := len(line) - len(trimmed)
		text := strings.TrimSpace(trimmed)
		if level == 0 || level > 6 || text == "" || !strings.HasPrefix(trimmed, " ") {
			continue
		}
		lines = append(lines, strings.Repeat("  ", level-1)+"- "+text)
		if len(lines) == maxOutlineLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func pageTitle(doc, path string) string {
	if m := titleRe.FindStringSubmatch(doc); m != nil {
		if t := strings.Join(strings.Fields(html.UnescapeString(m[1])), " "); t != "" {
			return t
		}
	}
	return path
}
