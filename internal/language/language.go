// Package language decides which language a post is written in.
//
// Classification has three stages. A cheap script prefilter drops text with
// no Hebrew-script characters, a statistical detector labels what remains,
// and a Yiddish heuristic separates Yiddish from Hebrew, which share an
// alphabet. The author's historical language distribution can override a
// low-confidence result (see AuthorPolicy).
package language

import "slices"

// Language labels stored with each post.
const (
	Hebrew       = "he"
	HebrewLegacy = "iw"
	Yiddish      = "yi"
	Unknown      = "unknown"
)

// HebrewLabels are the labels served by the Hebrew feeds.
var HebrewLabels = []string{Hebrew, HebrewLegacy}

// YiddishLabels are the labels served by the Yiddish feed.
var YiddishLabels = []string{Yiddish}

// TrackedLabels are the labels the feeds care about.
var TrackedLabels = []string{Hebrew, HebrewLegacy, Yiddish}

// IsTracked reports whether label belongs to a tracked language.
func IsTracked(label string) bool {
	return slices.Contains(TrackedLabels, label)
}

// Result is the outcome of classifying one text.
type Result struct {
	Label      string
	Confidence float64
	// FromAuthor is set when the label came from the author's history.
	FromAuthor bool
}

// UnknownResult is returned when no language can be determined.
var UnknownResult = Result{Label: Unknown}
