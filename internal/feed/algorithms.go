package feed

import (
	"context"
	"fmt"
	"time"

	"hebrewfeed/internal/database"
	"hebrewfeed/internal/language"
)

// Feed short names.
const (
	HebrewFeed      = "hebrew-feed"
	HebrewFeedAll   = "hebrew-feed-all"
	HebrewNoobs     = "hebrew-noobs"
	HebrewMilifney  = "hebrew-feed-milifney"
	YiddishAll      = "yiddish-all"
	ExperimentsFeed = "experiment-feed"
)

const openSourceSuffix = "\nהפיד בקוד פתוח! מוזמנים לעקוב ולעזור."

// BlockSource returns the accounts an actor blocks.
type BlockSource interface {
	GetBlocksFor(ctx context.Context, actor string) []string
}

// FilterSource returns the accounts excluded from every feed.
type FilterSource interface {
	List() []string
}

// Deps are the collaborators of the built-in algorithms.
type Deps struct {
	Store    database.FeedStore
	Blocks   BlockSource
	Filtered FilterSource
	// ExperimentPath is the skeleton file served by the experiments feed.
	ExperimentPath string
	Now            func() time.Time
}

// DefaultFeeds returns the metadata of the built-in feeds in publishing order.
func DefaultFeeds() []Metadata {
	return []Metadata{
		{
			Name:        HebrewNoobs,
			DisplayName: "עברית חדשים",
			Description: "כל הפוסטים הראשונים בעברית" + openSourceSuffix,
			Avatar:      "ח.png",
		},
		{
			Name:        HebrewFeed,
			DisplayName: "עברית",
			Description: "כל הפוסטים בעברית (ללא תגובות)." + openSourceSuffix,
			Avatar:      "א.png",
		},
		{
			Name:        HebrewFeedAll,
			DisplayName: "עברית + תגובות",
			Description: "כל הפוסטים והתגובות בעברית." + openSourceSuffix,
			Avatar:      "ת.png",
		},
		{
			Name:        HebrewMilifney,
			DisplayName: "עברית לפני שנה",
			Description: "כל הפוסטים והתגובות בעברית מלפני בדיוק שנה." + openSourceSuffix,
			Avatar:      "ז.png",
		},
		{
			Name:        YiddishAll,
			DisplayName: "יידיש",
			Description: "All posts and replies in yiddish.\nThis feed is open source, you're welcome to help!",
			Avatar:      "ע.png",
		},
		{
			Name:        ExperimentsFeed,
			DisplayName: "experiments",
			Description: "Nothing to see here, running experiments.",
			Avatar:      "experiment.png",
		},
	}
}

// NewDefaultRegistry registers every built-in feed.
func NewDefaultRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	algos := map[string]Algorithm{
		HebrewNoobs:     firstPostsFeed(deps, language.HebrewLabels),
		HebrewFeed:      languageFeed(deps, languageOptions{languages: language.HebrewLabels}),
		HebrewFeedAll:   languageFeed(deps, languageOptions{languages: language.HebrewLabels, replies: true}),
		HebrewMilifney:  languageFeed(deps, languageOptions{languages: language.HebrewLabels, replies: true, yearAgo: true}),
		YiddishAll:      languageFeed(deps, languageOptions{languages: language.YiddishLabels, replies: true}),
		ExperimentsFeed: &experimentFeed{path: deps.ExperimentPath},
	}

	r := NewRegistry()
	for _, meta := range DefaultFeeds() {
		r.Register(meta, algos[meta.Name])
	}
	return r
}

type languageOptions struct {
	languages []string
	replies   bool
	// yearAgo serves posts from one year before the request and older.
	yearAgo bool
}

func languageFeed(deps Deps, opts languageOptions) Algorithm {
	return AlgorithmFunc(func(ctx context.Context, req Request) (*Skeleton, error) {
		q, err := baseQuery(deps, req, opts.languages)
		if err != nil {
			return nil, err
		}
		q.IncludeReplies = opts.replies
		if opts.replies && req.Viewer != "" && deps.Blocks != nil {
			q.ExcludeRepliesTo = deps.Blocks.GetBlocksFor(ctx, req.Viewer)
		}
		if opts.yearAgo {
			q.NotAfter = deps.Now().AddDate(-1, 0, 0)
		}

		rows, err := deps.Store.QueryFeed(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query feed: %w", err)
		}
		return render(rows), nil
	})
}

func firstPostsFeed(deps Deps, languages []string) Algorithm {
	return AlgorithmFunc(func(ctx context.Context, req Request) (*Skeleton, error) {
		q, err := baseQuery(deps, req, languages)
		if err != nil {
			return nil, err
		}
		rows, err := deps.Store.QueryFirstPosts(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query first posts: %w", err)
		}
		return render(rows), nil
	})
}

func baseQuery(deps Deps, req Request, languages []string) (database.FeedQuery, error) {
	after, err := DecodeCursor(req.Cursor)
	if err != nil {
		return database.FeedQuery{}, err
	}
	q := database.FeedQuery{
		Languages: languages,
		After:     after,
		Limit:     req.Limit,
	}
	if deps.Filtered != nil {
		q.ExcludeAuthors = deps.Filtered.List()
	}
	return q, nil
}

// render builds a skeleton whose cursor resumes after the last row.
func render(rows []database.FeedRow) *Skeleton {
	s := &Skeleton{Feed: make([]SkeletonItem, 0, len(rows))}
	for _, row := range rows {
		s.Feed = append(s.Feed, SkeletonItem{Post: row.URI})
	}
	if len(rows) > 0 {
		s.Cursor = EncodeCursor(rows[len(rows)-1])
	}
	return s
}
