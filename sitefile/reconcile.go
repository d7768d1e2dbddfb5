package sitefile

import "strings"

// Report describes what one reconciliation run changed. It is meant for
// diagnostic logging only.
type Report struct {
	Input      int            `json:"input"`
	Output     int            `json:"output"`
	Dropped    int            `json:"dropped"`    // empty paths
	Duplicates int            `json:"duplicates"` // records merged into another of the same path
	Repaired   int            `json:"repaired"`   // HTML records changed by CompleteHTML
	Images     []ImageRewrite `json:"images,omitempty"`
}

// ImageRewrites returns the total number of rewritten image references.
func (r Report) ImageRewrites() int {
	n := 0
	for _, im := range r.Images {
		n += im.Count
	}
	return n
}

// Reconcile runs the whole pipeline: dedupe, type resolution, HTML
// completion, image fixing on HTML records and priority sort.
func Reconcile(records []FileRecord) []FileRecord {
	out, _ := ReconcileReport(records)
	return out
}

// ReconcileReport is Reconcile plus the run's Report.
func ReconcileReport(records []FileRecord) ([]FileRecord, Report) {
	rep := Report{Input: len(records)}

	valid := 0
	for _, r := range records {
		if strings.TrimSpace(r.Path) != "" {
			valid++
		}
	}
	rep.Dropped = len(records) - valid

	deduped := Dedupe(records)
	rep.Duplicates = valid - len(deduped)

	for i, r := range deduped {
		t := StorageType(ResolveType(string(r.Type), r.Path))
		content := r.Content
		if t == TypeHTML {
			completed := CompleteHTML(content)
			if completed != content {
				rep.Repaired++
			}
			fixed, images := FixImageURLsReport(completed)
			rep.Images = mergeImageRewrites(rep.Images, images)
			content = fixed
		}
		deduped[i] = New(r.Path, content, t)
	}

	out := SortByPriority(deduped)
	rep.Output = len(out)
	return out, rep
}

func mergeImageRewrites(dst, src []ImageRewrite) []ImageRewrite {
next:
	for _, s := range src {
		for i := range dst {
			if dst[i].Label == s.Label {
				dst[i].Count += s.Count
				continue next
			}
		}
		dst = append(dst, s)
	}
	return dst
}
