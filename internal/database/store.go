// Package database defines the persistence types and ports shared by the
// ingestion pipeline, the feed algorithms and the background jobs.
package database

import (
	"context"
	"time"

	"hebrewfeed/internal/language"
)

// Post is an indexed post row. Rows are immutable once written.
type Post struct {
	URI    string
	CID    string
	Author string
	// CreatedAt is the author-supplied timestamp; zero when absent or malformed.
	CreatedAt time.Time
	IndexedAt time.Time
	// EffectiveTimestamp orders every feed: min(CreatedAt, IndexedAt), or
	// IndexedAt when CreatedAt is zero.
	EffectiveTimestamp time.Time
	ReplyTo            string
	ReplyRoot          string
	Language           string
}

// EffectiveTimestamp returns the feed ordering time for a post.
func EffectiveTimestamp(createdAt, indexedAt time.Time) time.Time {
	if createdAt.IsZero() || createdAt.After(indexedAt) {
		return indexedAt
	}
	return createdAt
}

// FeedRow is one result row of a feed query.
type FeedRow struct {
	URI string
	CID string
	// EffectiveTimestamp in Unix milliseconds.
	EffectiveTimestamp int64
}

// FeedKey is a keyset pagination position: rows strictly after it in
// (effective_timestamp DESC, cid DESC) order are returned.
type FeedKey struct {
	Millis int64
	CID    string
}

// FeedQuery selects posts for a feed page.
type FeedQuery struct {
	Languages      []string
	IncludeReplies bool
	// ExcludeAuthors drops posts by these authors (filtered users).
	ExcludeAuthors []string
	// ExcludeRepliesTo drops replies to posts written by these authors
	// (the viewer's blocks).
	ExcludeRepliesTo []string
	// NotAfter, when set, drops posts newer than it.
	NotAfter time.Time
	After    *FeedKey
	Limit    int
}

// PostStore is the write side used by the indexer.
type PostStore interface {
	// ApplyPosts deletes then inserts in one transaction. Inserts of
	// existing URIs are ignored.
	ApplyPosts(ctx context.Context, inserts []Post, deletes []string) error
	AuthorLanguages(ctx context.Context, authors []string) (map[string]language.AuthorLanguage, error)
}

// FeedStore is the read side used by the feed algorithms.
type FeedStore interface {
	QueryFeed(ctx context.Context, q FeedQuery) ([]FeedRow, error)
	QueryFirstPosts(ctx context.Context, q FeedQuery) ([]FeedRow, error)
}

// CursorStore persists the stream position per service.
type CursorStore interface {
	GetCursor(ctx context.Context, service string) (int64, bool, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}
