package export

import (
	"encoding/json"
	"maps"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/beevik/etree"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// securityHeaders are served by every hosting configuration.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "SAMEORIGIN",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
}

var deployScriptTemplate = raymond.MustParse(`#!/bin/sh
# Copies {{{name}}} into a web root.
set -eu

target="${1:-./public}"
src="$(cd "$(dirname "$0")" && pwd)"

{{#each dirs}}
mkdir -p "$target/{{{this}}}"
{{/each}}
{{#each files}}
cp "$src/{{{this}}}" "$target/{{{this}}}"
{{/each}}

echo "Copied {{count}} files to $target"
`)

func renderDeployScript(info siteInfo) ([]byte, error) {
	dirs := []string{""}
	seen := map[string]bool{"": true}
	files := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		files = append(files, f.Path)
		for d := path.Dir(f.Path); d != "." && !seen[d]; d = path.Dir(d) {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	out, err := deployScriptTemplate.Exec(map[string]any{
		"name":  info.Name,
		"dirs":  dirs,
		"files": files,
		"count": len(files),
	})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

type netlifyConfig struct {
	Build   netlifyBuild     `toml:"build"`
	Headers []netlifyHeaders `toml:"headers"`
}

type netlifyBuild struct {
	Publish string `toml:"publish"`
}

type netlifyHeaders struct {
	For    string            `toml:"for"`
	Values map[string]string `toml:"values"`
}

func renderNetlify(info siteInfo) ([]byte, error) {
	return toml.Marshal(netlifyConfig{
		Build:   netlifyBuild{Publish: "."},
		Headers: []netlifyHeaders{{For: "/*", Values: securityHeaders}},
	})
}

type vercelConfig struct {
	CleanURLs     bool           `json:"cleanUrls"`
	TrailingSlash bool           `json:"trailingSlash"`
	Headers       []vercelHeader `json:"headers"`
}

type vercelHeader struct {
	Source  string           `json:"source"`
	Headers []vercelHeaderKV `json:"headers"`
}

type vercelHeaderKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func renderVercel(info siteInfo) ([]byte, error) {
	kv := make([]vercelHeaderKV, 0, len(securityHeaders))
	for _, k := range slices.Sorted(maps.Keys(securityHeaders)) {
		kv = append(kv, vercelHeaderKV{Key: k, Value: securityHeaders[k]})
	}
	out, err := json.MarshalIndent(vercelConfig{
		CleanURLs: true,
		Headers:   []vercelHeader{{Source: "/(.*)", Headers: kv}},
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

type workflow struct {
	Name        string                 `yaml:"name"`
	On          workflowTriggers       `yaml:"on"`
	Permissions map[string]string      `yaml:"permissions"`
	Concurrency workflowConcurrency    `yaml:"concurrency"`
	Jobs        map[string]workflowJob `yaml:"jobs"`
}

type workflowTriggers struct {
	Push             workflowPush      `yaml:"push"`
	WorkflowDispatch map[string]string `yaml:"workflow_dispatch"`
}

type workflowPush struct {
	Branches []string `yaml:"branches"`
}

type workflowConcurrency struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

type workflowJob struct {
	RunsOn      string              `yaml:"runs-on"`
	Environment workflowEnvironment `yaml:"environment"`
	Steps       []workflowStep      `yaml:"steps"`
}

type workflowEnvironment struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type workflowStep struct {
	Name string            `yaml:"name"`
	ID   string            `yaml:"id,omitempty"`
	Uses string            `yaml:"uses"`
	With map[string]string `yaml:"with,omitempty"`
}

func renderPagesWorkflow(info siteInfo) ([]byte, error) {
	return yaml.Marshal(workflow{
		Name: "Deploy " + info.Name + " to GitHub Pages",
		On: workflowTriggers{
			Push:             workflowPush{Branches: []string{"main"}},
			WorkflowDispatch: map[string]string{},
		},
		Permissions: map[string]string{"contents": "read", "pages": "write", "id-token": "write"},
		Concurrency: workflowConcurrency{Group: "pages", CancelInProgress: false},
		Jobs: map[string]workflowJob{
			"deploy": {
				RunsOn:      "ubuntu-latest",
				Environment: workflowEnvironment{Name: "github-pages", URL: "${{ steps.deployment.outputs.page_url }}"},
				Steps: []workflowStep{
					{Name: "Checkout", Uses: "actions/checkout@v4"},
					{Name: "Configure Pages", Uses: "actions/configure-pages@v5"},
					{Name: "Upload artifact", Uses: "actions/upload-pages-artifact@v3", With: map[string]string{"path": "."}},
					{Name: "Deploy", ID: "deployment", Uses: "actions/deploy-pages@v4"},
				},
			},
		},
	})
}

// SitemapURL is the public URL of a page under base.
func SitemapURL(base, p string) string {
	p = strings.TrimPrefix(p, "/")
	switch {
	case p == "index.html":
		p = ""
	case strings.HasSuffix(p, "/index.html"):
		p = strings.TrimSuffix(p, "index.html")
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}

func renderSitemap(info siteInfo) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	urlset := doc.CreateElement("urlset")
	urlset.CreateAttr("xmlns", "http://www.sitemaps.org/schemas/sitemap/0.9")
	for i, p := range info.Pages {
		u := urlset.CreateElement("url")
		u.CreateElement("loc").SetText(SitemapURL(info.BaseURL, p.Path))
		priority := "0.8"
		if i == 0 {
			priority = "1.0"
		}
		u.CreateElement("priority").SetText(priority)
	}
	doc.Indent(2)
	return doc.WriteToBytes()
}
