package language

// AuthorLanguage summarizes an author's indexed posts in one language.
type AuthorLanguage struct {
	Language string
	// Share is the fraction of the author's posts carrying Language.
	Share float64
	// Posts is the author's total number of indexed posts.
	Posts int
}

// AuthorPolicy decides when an author's history overrides a weak
// per-post classification.
type AuthorPolicy struct {
	MinConfidence float64
	MinShare      float64
	MinPosts      int
}

// DefaultAuthorPolicy is used when no thresholds are configured.
var DefaultAuthorPolicy = AuthorPolicy{MinConfidence: 0.5, MinShare: 0.8, MinPosts: 5}

// NeedsAuthorSignal reports whether r is weak enough to consult the author's
// history.
func (p AuthorPolicy) NeedsAuthorSignal(r Result) bool {
	return r.Label == Unknown || r.Confidence < p.MinConfidence
}

// Apply returns the author's dominant tracked language when r is weak and the
// author has enough consistent history, and r otherwise.
func (p AuthorPolicy) Apply(r Result, author AuthorLanguage, found bool) Result {
	if !found || !p.NeedsAuthorSignal(r) || !IsTracked(author.Language) {
		return r
	}
	if author.Posts < p.MinPosts || author.Share < p.MinShare {
		return r
	}
	return Result{Label: author.Language, Confidence: author.Share, FromAuthor: true}
}
