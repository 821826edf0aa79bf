package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hebrewfeed/internal/database"
	"hebrewfeed/internal/database/migrations"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Options{SQLitePath: filepath.Join(t.TempDir(), "feed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testPost(n int, opts ...func(*database.Post)) database.Post {
	ts := baseTime.Add(time.Duration(n) * time.Minute)
	p := database.Post{
		URI:                fmt.Sprintf("at://did:plc:author%d/app.bsky.feed.post/%d", n%3, n),
		CID:                fmt.Sprintf("bafy%04d", n),
		Author:             fmt.Sprintf("did:plc:author%d", n%3),
		CreatedAt:          ts,
		IndexedAt:          ts,
		EffectiveTimestamp: ts,
		Language:           "he",
	}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func uris(rows []database.FeedRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.URI
	}
	return out
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "feed.db")

	store, err := Open(context.Background(), Options{SQLitePath: path})
	require.NoError(t, err)
	assert.Equal(t, migrations.SQLite, store.Dialect())
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	store, err = Open(context.Background(), Options{SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestApplyPosts_InsertIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := testPost(1, func(p *database.Post) {
		p.ReplyTo = "at://did:plc:x/app.bsky.feed.post/parent"
		p.ReplyRoot = "at://did:plc:x/app.bsky.feed.post/root"
	})
	require.NoError(t, store.InsertPosts(ctx, []database.Post{p}))

	// A redelivered create with different content must not change the row.
	dup := p
	dup.CID = "bafychanged"
	dup.Language = "yi"
	require.NoError(t, store.InsertPosts(ctx, []database.Post{dup}))

	got, err := store.GetPost(ctx, p.URI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.CID, got.CID)
	assert.Equal(t, "he", got.Language)
	assert.Equal(t, p.ReplyTo, got.ReplyTo)
	assert.Equal(t, p.ReplyRoot, got.ReplyRoot)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, p.EffectiveTimestamp.Equal(got.EffectiveTimestamp))

	n, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApplyPosts_NullCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := testPost(1, func(p *database.Post) { p.CreatedAt = time.Time{} })
	require.NoError(t, store.InsertPosts(ctx, []database.Post{p}))

	got, err := store.GetPost(ctx, p.URI)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.IsZero())
}

func TestApplyPosts_DeleteThenInsertInOneBatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := testPost(1)
	require.NoError(t, store.InsertPosts(ctx, []database.Post{old}))

	recreated := old
	recreated.CID = "bafynew"
	require.NoError(t, store.ApplyPosts(ctx, []database.Post{recreated}, []string{old.URI}))

	got, err := store.GetPost(ctx, old.URI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bafynew", got.CID)
}

func TestDeletePosts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertPosts(ctx, []database.Post{testPost(1), testPost(2)}))
	require.NoError(t, store.DeletePosts(ctx, []string{testPost(1).URI, "at://did:plc:nobody/app.bsky.feed.post/x"}))

	got, err := store.GetPost(ctx, testPost(1).URI)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApplyPosts_LargeBatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	posts := make([]database.Post, 0, 450)
	for i := range 450 {
		posts = append(posts, testPost(i))
	}
	require.NoError(t, store.InsertPosts(ctx, posts))

	n, err := store.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(450), n)
}

func TestCursor(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetCursor(ctx, "wss://bsky.network")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpdateCursor(ctx, "wss://bsky.network", 100))
	require.NoError(t, store.UpdateCursor(ctx, "wss://bsky.network", 250))
	require.NoError(t, store.UpdateCursor(ctx, "wss://other.relay", 7))

	cursor, ok, err := store.GetCursor(ctx, "wss://bsky.network")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(250), cursor)

	cursor, _, err = store.GetCursor(ctx, "wss://other.relay")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: migrations.Postgres}
	lite := &Store{dialect: migrations.SQLite}

	q := `SELECT 1 FROM post WHERE uri IN (?, ?) AND cid < ?`
	assert.Equal(t, `SELECT 1 FROM post WHERE uri IN ($1, $2) AND cid < $3`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
