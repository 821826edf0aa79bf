package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hebrewfeed/internal/database"
	"hebrewfeed/internal/database/sqlstore"
)

func TestHebrewFeed_PaginatesThroughSQLStore(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Options{SQLitePath: filepath.Join(t.TempDir(), "feed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	var posts []database.Post
	for i := range 5 {
		ts := base.Add(time.Duration(i) * time.Minute)
		posts = append(posts, database.Post{
			URI:                fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i),
			CID:                fmt.Sprintf("bafy%d", i),
			Author:             "did:plc:a",
			CreatedAt:          ts,
			IndexedAt:          ts,
			EffectiveTimestamp: ts,
			Language:           "he",
		})
	}
	// Same timestamp as post 4; the CID breaks the tie.
	posts = append(posts, database.Post{
		URI:                "at://did:plc:b/app.bsky.feed.post/tie",
		CID:                "bafy9",
		Author:             "did:plc:b",
		IndexedAt:          posts[4].IndexedAt,
		EffectiveTimestamp: posts[4].EffectiveTimestamp,
		Language:           "iw",
	})
	require.NoError(t, store.ApplyPosts(ctx, posts, nil))

	svc := NewService(NewDefaultRegistry(Deps{Store: store}), nil)

	var (
		seen   []string
		cursor string
		pages  int
	)
	for {
		s, err := svc.Generate(ctx, HebrewFeed, Request{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		pages++
		for _, item := range s.Feed {
			seen = append(seen, item.Post)
		}
		if len(s.Feed) == 0 {
			assert.Empty(t, s.Cursor, "an empty page has no cursor")
			break
		}
		cursor = s.Cursor
		require.Less(t, pages, 10)
	}

	assert.Equal(t, []string{
		"at://did:plc:b/app.bsky.feed.post/tie",
		"at://did:plc:a/app.bsky.feed.post/4",
		"at://did:plc:a/app.bsky.feed.post/3",
		"at://did:plc:a/app.bsky.feed.post/2",
		"at://did:plc:a/app.bsky.feed.post/1",
		"at://did:plc:a/app.bsky.feed.post/0",
	}, seen)
	assert.Equal(t, 4, pages)
}
