package language

import (
	"cmp"
	"slices"
	"strings"
)

// Facet is a byte range of a post's text that carries an annotation such as a
// link, mention or tag.
type Facet struct {
	Start int
	End   int
}

// PrepareText removes every annotated byte range from text so that URLs and
// handles do not sway detection. Ranges are validated against the text,
// overlapping ranges are merged and removal runs from the highest offset down
// so earlier offsets stay valid. The result is trimmed and always valid
// UTF-8.
func PrepareText(text string, facets []Facet) string {
	ranges := mergeFacets(text, facets)
	for i := len(ranges) - 1; i >= 0; i-- {
		r := ranges[i]
		text = text[:r.Start] + text[r.End:]
	}
	return strings.TrimSpace(strings.ToValidUTF8(text, ""))
}

func mergeFacets(text string, facets []Facet) []Facet {
	valid := make([]Facet, 0, len(facets))
	for _, f := range facets {
		if f.Start < 0 || f.End > len(text) || f.Start >= f.End {
			continue
		}
		valid = append(valid, f)
	}
	slices.SortFunc(valid, func(a, b Facet) int { return cmp.Compare(a.Start, b.Start) })

	merged := valid[:0]
	for _, f := range valid {
		if n := len(merged); n > 0 && f.Start <= merged[n-1].End {
			merged[n-1].End = max(merged[n-1].End, f.End)
			continue
		}
		merged = append(merged, f)
	}
	return merged
}
