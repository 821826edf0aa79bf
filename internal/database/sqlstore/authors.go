package sqlstore

import (
	"context"
	"fmt"

	"hebrewfeed/internal/language"
)

// RebuildAuthorLanguages recomputes every author's language distribution
// from the post table in one transaction.
func (s *Store) RebuildAuthorLanguages(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin author languages: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM author_language`); err != nil {
		return 0, fmt.Errorf("clear author languages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO author_language (author, language, post_count, total_posts, share)
		SELECT p.author, p.language, COUNT(*), t.total, COUNT(*) * 1.0 / t.total
		FROM post p
		JOIN (SELECT author, COUNT(*) AS total FROM post GROUP BY author) t ON t.author = p.author
		GROUP BY p.author, p.language, t.total
	`)
	if err != nil {
		return 0, fmt.Errorf("compute author languages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit author languages: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// AuthorLanguages returns each given author's dominant tracked language.
// Authors without tracked-language history are absent from the result.
func (s *Store) AuthorLanguages(ctx context.Context, authors []string) (map[string]language.AuthorLanguage, error) {
	out := make(map[string]language.AuthorLanguage)

	for start := 0; start < len(authors); start += deleteChunk {
		chunk := authors[start:min(start+deleteChunk, len(authors))]

		var q queryBuilder
		q.add(`SELECT author, language, share, total_posts FROM author_language WHERE author IN ` + q.in(chunk) +
			` AND language IN ` + q.in(language.TrackedLabels))

		rows, err := s.db.QueryContext(ctx, s.rebind(q.sql.String()), q.args...)
		if err != nil {
			return nil, fmt.Errorf("query author languages: %w", err)
		}
		for rows.Next() {
			var author string
			var al language.AuthorLanguage
			if err := rows.Scan(&author, &al.Language, &al.Share, &al.Posts); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan author language: %w", err)
			}
			if cur, ok := out[author]; !ok || al.Share > cur.Share {
				out[author] = al
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate author languages: %w", err)
		}
	}

	return out, nil
}
