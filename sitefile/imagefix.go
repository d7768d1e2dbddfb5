package sitefile

import "regexp"

// BrokenImagePattern matches any local image reference under assets/images.
// Generated sites never ship binary assets, so every such reference is
// broken and must be rewritten.
var BrokenImagePattern = regexp.MustCompile(`(?i)assets/images/[^\s"'()<>]*\.(?:jpe?g|png|gif)`)

// FallbackImageURL replaces local images no table entry recognized.
const FallbackImageURL = "https://images.unsplash.com/photo-1558655146-d09347e92766?w=800&q=80"

// FallbackImageLabel is reported for catch-all rewrites.
const FallbackImageLabel = "fallback"

// ImageRule rewrites one family of conventional local image names.
type ImageRule struct {
	Label       string
	Pattern     *regexp.Regexp
	Replacement string
}

// localPrefix consumes everything in the same reference up to the last
// slash before assets/images: "./", "../", "/static/" or a scheme and host.
// The whole reference is replaced, never just its tail.
const localPrefix = `(?:[^\s"'()<>,=]*/)?`

func imageRule(label, names, url string) ImageRule {
	return ImageRule{
		Label:       label,
		Pattern:     regexp.MustCompile(`(?i)` + localPrefix + `assets/images/[\w-]*(?:` + names + `)[\w-]*\.(?:jpe?g|png|gif)`),
		Replacement: url,
	}
}

var imageRules = []ImageRule{
	imageRule("hero", `hero|banner|background|bg|cover|header`,
		"https://images.unsplash.com/photo-1451187580459-43490279c0fa?w=1600&q=80"),
	imageRule("profile", `profile|avatar|author|person|testimonial|headshot|user`,
		"https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=400&q=80"),
	imageRule("food/chef", `chef|cook|kitchen`,
		"https://images.unsplash.com/photo-1577219491135-ce391730fb2c?w=800&q=80"),
	imageRule("food", `food|dish|meal|menu|restaurant|pizza|burger|dessert|cuisine`,
		"https://images.unsplash.com/photo-1504674900247-0877df9cc836?w=800&q=80"),
	imageRule("business", `team|office|meeting|business|company|about`,
		"https://images.unsplash.com/photo-1522071820081-009f0129c71c?w=800&q=80"),
	imageRule("tech", `tech|laptop|computer|code|device|software|server|app`,
		"https://images.unsplash.com/photo-1518770660439-4636190af475?w=800&q=80"),
	imageRule("portfolio", `project|portfolio|work|gallery|case`,
		"https://images.unsplash.com/photo-1467232004584-a241de8bcf5d?w=800&q=80"),
	imageRule("generic", `image|img|photo|picture|placeholder`,
		"https://images.unsplash.com/photo-1506744038136-46273834b3fb?w=800&q=80"),
}

var fallbackRule = ImageRule{
	Label:       FallbackImageLabel,
	Pattern:     regexp.MustCompile(`(?i)` + localPrefix + BrokenImagePattern.String()[len(`(?i)`):]),
	Replacement: FallbackImageURL,
}

// ImageRules returns a copy of the ordered rewrite table, catch-all last.
func ImageRules() []ImageRule {
	out := make([]ImageRule, 0, len(imageRules)+1)
	out = append(out, imageRules...)
	return append(out, fallbackRule)
}

// ImageRewrite counts the references one rule rewrote.
type ImageRewrite struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FixImageURLs rewrites broken local image references in html to remote
// placeholder images. The result never matches BrokenImagePattern.
func FixImageURLs(html string) string {
	out, _ := FixImageURLsReport(html)
	return out
}

// FixImageURLsReport is FixImageURLs plus the per-label rewrite counts, in
// table order. Labels only matter for diagnostics: the catch-all guarantees
// the outcome whatever the table order.
func FixImageURLsReport(html string) (string, []ImageRewrite) {
	var report []ImageRewrite
	for _, rule := range imageRules {
		html = applyImageRule(rule, html, &report)
	}
	// A replacement never contains assets/images, but a second pass costs
	// nothing when the first one left no match.
	for range 2 {
		if !BrokenImagePattern.MatchString(html) {
			break
		}
		html = applyImageRule(fallbackRule, html, &report)
	}
	return html, report
}

func applyImageRule(rule ImageRule, html string, report *[]ImageRewrite) string {
	n := len(rule.Pattern.FindAllStringIndex(html, -1))
	if n == 0 {
		return html
	}
	for i := range *report {
		if (*report)[i].Label == rule.Label {
			(*report)[i].Count += n
			return rule.Pattern.ReplaceAllLiteralString(html, rule.Replacement)
		}
	}
	*report = append(*report, ImageRewrite{Label: rule.Label, Count: n})
	return rule.Pattern.ReplaceAllLiteralString(html, rule.Replacement)
}
