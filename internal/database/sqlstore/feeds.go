package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"hebrewfeed/internal/database"
)

// queryBuilder accumulates SQL text and its arguments in the same order.
// Placeholders are written as ? and rebound per dialect at execution.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (q *queryBuilder) add(text string, args ...any) {
	q.sql.WriteString(text)
	q.args = append(q.args, args...)
}

// in records values as arguments and returns the matching "(?, ?)" list.
// Call it inside the text passed to add so its arguments precede add's own.
func (q *queryBuilder) in(values []string) string {
	q.args = append(q.args, stringArgs(values)...)
	return "(" + placeholders(len(values)) + ")"
}

// QueryFeed returns one page of posts in the given languages, newest first.
func (s *Store) QueryFeed(ctx context.Context, fq database.FeedQuery) ([]database.FeedRow, error) {
	if len(fq.Languages) == 0 || fq.Limit <= 0 {
		return nil, nil
	}

	var q queryBuilder
	q.add(`SELECT p.uri, p.cid, p.effective_timestamp FROM post p WHERE p.language IN ` + q.in(fq.Languages))
	applyFeedFilters(&q, fq)
	q.add(` ORDER BY p.effective_timestamp DESC, p.cid DESC LIMIT ?`, fq.Limit)

	return s.queryFeedRows(ctx, &q)
}

// QueryFirstPosts returns one page of each author's first top-level post in
// the given languages, newest first.
func (s *Store) QueryFirstPosts(ctx context.Context, fq database.FeedQuery) ([]database.FeedRow, error) {
	if len(fq.Languages) == 0 || fq.Limit <= 0 {
		return nil, nil
	}

	var q queryBuilder
	q.add(`SELECT p.uri, p.cid, p.effective_timestamp FROM post p JOIN (` +
		`SELECT author, MIN(effective_timestamp) AS first_ts FROM post WHERE language IN ` + q.in(fq.Languages) +
		` AND reply_to IS NULL GROUP BY author` +
		`) f ON f.author = p.author AND f.first_ts = p.effective_timestamp` +
		` WHERE p.language IN ` + q.in(fq.Languages))

	fq.IncludeReplies = false
	applyFeedFilters(&q, fq)
	q.add(` ORDER BY p.effective_timestamp DESC, p.cid DESC LIMIT ?`, fq.Limit)

	return s.queryFeedRows(ctx, &q)
}

func applyFeedFilters(q *queryBuilder, fq database.FeedQuery) {
	switch {
	case !fq.IncludeReplies:
		q.add(` AND p.reply_to IS NULL`)
	case len(fq.ExcludeRepliesTo) > 0:
		q.add(` AND (p.reply_to IS NULL OR p.reply_to NOT IN (SELECT b.uri FROM post b WHERE b.author IN ` + q.in(fq.ExcludeRepliesTo) + `))`)
	}
	if len(fq.ExcludeAuthors) > 0 {
		q.add(` AND p.author NOT IN ` + q.in(fq.ExcludeAuthors))
	}
	if !fq.NotAfter.IsZero() {
		q.add(` AND p.effective_timestamp <= ?`, fq.NotAfter.UnixMilli())
	}
	if fq.After != nil {
		q.add(` AND (p.effective_timestamp < ? OR (p.effective_timestamp = ? AND p.cid < ?))`,
			fq.After.Millis, fq.After.Millis, fq.After.CID)
	}
}

func (s *Store) queryFeedRows(ctx context.Context, q *queryBuilder) ([]database.FeedRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q.sql.String()), q.args...)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	var out []database.FeedRow
	for rows.Next() {
		var r database.FeedRow
		if err := rows.Scan(&r.URI, &r.CID, &r.EffectiveTimestamp); err != nil {
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed rows: %w", err)
	}
	return out, nil
}
