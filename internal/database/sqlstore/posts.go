package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hebrewfeed/internal/database"
)

// Rows per multi-row statement; keeps well under every driver's parameter limit.
const (
	insertChunk = 200
	deleteChunk = 500
)

const postColumns = 9

// ApplyPosts deletes then inserts in a single transaction, so a batch
// containing both a delete and a later create of the same URI ends with the
// row present.
func (s *Store) ApplyPosts(ctx context.Context, inserts []database.Post, deletes []string) error {
	if len(inserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply posts: %w", err)
	}
	defer tx.Rollback()

	if err := s.deletePosts(ctx, tx, deletes); err != nil {
		return err
	}
	if err := s.insertPosts(ctx, tx, inserts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply posts: %w", err)
	}
	return nil
}

// InsertPosts inserts posts, ignoring URIs that already exist.
func (s *Store) InsertPosts(ctx context.Context, posts []database.Post) error {
	return s.ApplyPosts(ctx, posts, nil)
}

// DeletePosts removes posts by URI. Unknown URIs are ignored.
func (s *Store) DeletePosts(ctx context.Context, uris []string) error {
	return s.ApplyPosts(ctx, nil, uris)
}

func (s *Store) insertPosts(ctx context.Context, tx *sql.Tx, posts []database.Post) error {
	for start := 0; start < len(posts); start += insertChunk {
		chunk := posts[start:min(start+insertChunk, len(posts))]

		var b strings.Builder
		b.WriteString(`INSERT INTO post (uri, cid, author, created_at, indexed_at, effective_timestamp, reply_to, reply_root, language) VALUES `)
		args := make([]any, 0, len(chunk)*postColumns)
		for i, p := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(" + placeholders(postColumns) + ")")
			args = append(args,
				p.URI,
				p.CID,
				p.Author,
				nullTime(p.CreatedAt),
				p.IndexedAt.UTC().Format(time.RFC3339Nano),
				p.EffectiveTimestamp.UnixMilli(),
				nullString(p.ReplyTo),
				nullString(p.ReplyRoot),
				p.Language,
			)
		}
		b.WriteString(" ON CONFLICT (uri) DO NOTHING")

		if _, err := tx.ExecContext(ctx, s.rebind(b.String()), args...); err != nil {
			return fmt.Errorf("insert posts: %w", err)
		}
	}
	return nil
}

func (s *Store) deletePosts(ctx context.Context, tx *sql.Tx, uris []string) error {
	for start := 0; start < len(uris); start += deleteChunk {
		chunk := uris[start:min(start+deleteChunk, len(uris))]
		query := `DELETE FROM post WHERE uri IN (` + placeholders(len(chunk)) + `)`
		if _, err := tx.ExecContext(ctx, s.rebind(query), stringArgs(chunk)...); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
	}
	return nil
}

// GetPost returns the post with the given URI, or nil when absent.
func (s *Store) GetPost(ctx context.Context, uri string) (*database.Post, error) {
	var p database.Post
	var createdAt, replyTo, replyRoot sql.NullString
	var indexedAt string
	var effective int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT uri, cid, author, created_at, indexed_at, effective_timestamp, reply_to, reply_root, language
		FROM post WHERE uri = ?
	`), uri).Scan(&p.URI, &p.CID, &p.Author, &createdAt, &indexedAt, &effective, &replyTo, &replyRoot, &p.Language)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if createdAt.Valid {
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
	}
	p.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	p.EffectiveTimestamp = time.UnixMilli(effective).UTC()
	p.ReplyTo = replyTo.String
	p.ReplyRoot = replyRoot.String
	return &p, nil
}

// CountPosts returns the number of indexed posts.
func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
