package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hebrewfeed/internal/database"
)

func TestQueryFeed_OrderAndPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	posts := []database.Post{testPost(1), testPost(2), testPost(3), testPost(4)}
	// Two posts share a timestamp; cid breaks the tie.
	tie := testPost(5, func(p *database.Post) {
		p.EffectiveTimestamp = posts[3].EffectiveTimestamp
		p.CID = "bafy9999"
	})
	posts = append(posts, tie)
	require.NoError(t, store.InsertPosts(ctx, posts))

	page1, err := store.QueryFeed(ctx, database.FeedQuery{Languages: []string{"he"}, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{tie.URI, posts[3].URI, posts[2].URI}, uris(page1))

	last := page1[len(page1)-1]
	page2, err := store.QueryFeed(ctx, database.FeedQuery{
		Languages: []string{"he"},
		Limit:     3,
		After:     &database.FeedKey{Millis: last.EffectiveTimestamp, CID: last.CID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{posts[1].URI, posts[0].URI}, uris(page2))
}

func TestQueryFeed_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	blockedAuthor := "did:plc:blocked"
	blockedPost := testPost(1, func(p *database.Post) {
		p.Author = blockedAuthor
		p.URI = "at://did:plc:blocked/app.bsky.feed.post/1"
	})
	replyToBlocked := testPost(2, func(p *database.Post) { p.ReplyTo = blockedPost.URI })
	replyToOther := testPost(3, func(p *database.Post) { p.ReplyTo = "at://did:plc:friend/app.bsky.feed.post/9" })
	topLevel := testPost(4)
	yiddish := testPost(5, func(p *database.Post) { p.Language = "yi" })
	spam := testPost(6, func(p *database.Post) {
		p.Author = "did:plc:spam"
		p.URI = "at://did:plc:spam/app.bsky.feed.post/6"
	})
	legacy := testPost(7, func(p *database.Post) { p.Language = "iw" })

	require.NoError(t, store.InsertPosts(ctx, []database.Post{blockedPost, replyToBlocked, replyToOther, topLevel, yiddish, spam, legacy}))

	t.Run("top level only", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{Languages: []string{"he", "iw"}, Limit: 50})
		require.NoError(t, err)
		assert.Equal(t, []string{legacy.URI, spam.URI, topLevel.URI, blockedPost.URI}, uris(rows))
	})

	t.Run("filtered authors excluded", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{
			Languages:      []string{"he", "iw"},
			ExcludeAuthors: []string{"did:plc:spam"},
			Limit:          50,
		})
		require.NoError(t, err)
		assert.NotContains(t, uris(rows), spam.URI)
	})

	t.Run("replies to blocked authors excluded", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{
			Languages:        []string{"he"},
			IncludeReplies:   true,
			ExcludeRepliesTo: []string{blockedAuthor},
			Limit:            50,
		})
		require.NoError(t, err)
		got := uris(rows)
		assert.NotContains(t, got, replyToBlocked.URI)
		assert.Contains(t, got, replyToOther.URI)
		assert.Contains(t, got, topLevel.URI)
	})

	t.Run("languages", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{Languages: []string{"yi"}, IncludeReplies: true, Limit: 50})
		require.NoError(t, err)
		assert.Equal(t, []string{yiddish.URI}, uris(rows))
	})

	t.Run("not after", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{
			Languages: []string{"he"},
			NotAfter:  baseTime.Add(3 * time.Minute),
			Limit:     50,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{blockedPost.URI}, uris(rows))
	})

	t.Run("no languages", func(t *testing.T) {
		rows, err := store.QueryFeed(ctx, database.FeedQuery{Limit: 50})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestQueryFirstPosts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// author0 posts at 3 and 6, author1 at 1 and 4, author2 at 2 (a reply) and 5.
	posts := []database.Post{
		testPost(1), testPost(2, func(p *database.Post) { p.ReplyTo = "at://x/app.bsky.feed.post/y" }),
		testPost(3), testPost(4), testPost(5), testPost(6),
	}
	require.NoError(t, store.InsertPosts(ctx, posts))

	rows, err := store.QueryFirstPosts(ctx, database.FeedQuery{Languages: []string{"he"}, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{posts[4].URI, posts[2].URI, posts[0].URI}, uris(rows))
}

func TestAuthorLanguages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var posts []database.Post
	for i := range 9 {
		posts = append(posts, testPost(i*3, func(p *database.Post) {
			if i == 0 {
				p.Language = "unknown"
			}
		}))
	}
	posts = append(posts, testPost(1, func(p *database.Post) { p.Language = "yi" }))
	require.NoError(t, store.InsertPosts(ctx, posts))

	n, err := store.RebuildAuthorLanguages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := store.AuthorLanguages(ctx, []string{"did:plc:author0", "did:plc:author1", "did:plc:nobody"})
	require.NoError(t, err)

	require.Contains(t, got, "did:plc:author0")
	assert.Equal(t, "he", got["did:plc:author0"].Language)
	assert.Equal(t, 9, got["did:plc:author0"].Posts)
	assert.InDelta(t, 8.0/9.0, got["did:plc:author0"].Share, 0.0001)

	require.Contains(t, got, "did:plc:author1")
	assert.Equal(t, "yi", got["did:plc:author1"].Language)
	assert.InDelta(t, 1.0, got["did:plc:author1"].Share, 0.0001)

	assert.NotContains(t, got, "did:plc:nobody")

	// Rebuilding is repeatable.
	_, err = store.RebuildAuthorLanguages(ctx)
	require.NoError(t, err)
}
