package atproto

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func blockRecord(rkey, subject string) map[string]any {
	return map[string]any{
		"uri":   "at://did:plc:alice/app.bsky.graph.block/" + rkey,
		"cid":   "bafy" + rkey,
		"value": map[string]any{"$type": "app.bsky.graph.block", "subject": subject, "createdAt": "2024-01-01T00:00:00Z"},
	}
}

func newPublicServer(t *testing.T, plcHits *atomic.Int32) (*httptest.Server, *PublicClient) {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("GET /did:plc:alice", func(w http.ResponseWriter, r *http.Request) {
		plcHits.Add(1)
		writeJSON(w, 200, map[string]any{
			"id": "did:plc:alice",
			"service": []map[string]string{
				{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": srv.URL + "/"},
			},
		})
	})
	mux.HandleFunc("GET /did:plc:nopds", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "did:plc:nopds"})
	})
	mux.HandleFunc("GET /xrpc/com.atproto.repo.listRecords", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "did:plc:alice", q.Get("repo"))
		assert.Equal(t, "app.bsky.graph.block", q.Get("collection"))
		assert.Equal(t, "2", q.Get("limit"))

		if q.Get("cursor") == "" {
			writeJSON(w, 200, map[string]any{
				"cursor": "page2",
				"records": []map[string]any{
					blockRecord("1", "did:plc:troll"),
					blockRecord("2", "did:plc:spam"),
				},
			})
			return
		}
		writeJSON(w, 200, map[string]any{"records": []map[string]any{}})
	})
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getLikes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "at://did:plc:bot/app.bsky.feed.post/control", r.URL.Query().Get("uri"))
		writeJSON(w, 200, map[string]any{
			"uri": "at://did:plc:bot/app.bsky.feed.post/control",
			"likes": []map[string]any{
				{"actor": map[string]any{"did": "did:plc:one", "handle": "one.test"}, "createdAt": "2024-01-01T00:00:00Z", "indexedAt": "2024-01-01T00:00:00Z"},
				{"actor": map[string]any{"did": "did:plc:two", "handle": "two.test"}, "createdAt": "2024-01-01T00:00:00Z", "indexedAt": "2024-01-01T00:00:00Z"},
			},
			"cursor": "next",
		})
	})
	mux.HandleFunc("GET /xrpc/app.bsky.actor.getProfile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"did": r.URL.Query().Get("actor"), "handle": "alice.test"})
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, NewPublicClient(PublicConfig{BaseURL: srv.URL, PLCURL: srv.URL, HTTPClient: srv.Client()})
}

func TestPublicClient_GetPDSEndpoint(t *testing.T) {
	var hits atomic.Int32
	srv, c := newPublicServer(t, &hits)
	ctx := context.Background()

	pds, err := c.GetPDSEndpoint(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, pds)

	_, err = c.GetPDSEndpoint(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from cache")
	assert.Equal(t, 1, c.pds.Len())

	_, err = c.GetPDSEndpoint(ctx, "did:plc:nopds")
	assert.Error(t, err)

	_, err = c.GetPDSEndpoint(ctx, "did:key:zabc")
	assert.Error(t, err)
}

func TestPublicClient_ListBlocks(t *testing.T) {
	var hits atomic.Int32
	_, c := newPublicServer(t, &hits)
	ctx := context.Background()

	blocked, cursor, err := c.ListBlocks(ctx, "did:plc:alice", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:troll", "did:plc:spam"}, blocked)
	assert.Equal(t, "page2", cursor)

	blocked, cursor, err = c.ListBlocks(ctx, "did:plc:alice", "page2", 2)
	require.NoError(t, err)
	assert.Empty(t, blocked)
	assert.Empty(t, cursor)
}

func TestPublicClient_ListLikers(t *testing.T) {
	var hits atomic.Int32
	_, c := newPublicServer(t, &hits)

	likers, cursor, err := c.ListLikers(context.Background(), "at://did:plc:bot/app.bsky.feed.post/control", "", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:one", "did:plc:two"}, likers)
	assert.Equal(t, "next", cursor)
}

func TestPublicClient_GetProfile(t *testing.T) {
	var hits atomic.Int32
	_, c := newPublicServer(t, &hits)

	p, err := c.GetProfile(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", p.DID)
	assert.Equal(t, "alice.test", p.Handle)
}

func TestClient_LoginAndCreatePost(t *testing.T) {
	var sessions, creates atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		n := sessions.Add(1)
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "bot.test", in["identifier"])
		assert.Equal(t, "secret", in["password"])
		writeJSON(w, 200, map[string]any{
			"did":        "did:plc:bot",
			"handle":     "bot.test",
			"accessJwt":  "access-" + string(rune('0'+n)),
			"refreshJwt": "refresh",
		})
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		// The first token is reported as expired.
		if creates.Add(1) == 1 {
			assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
			writeJSON(w, 400, map[string]string{"error": "ExpiredToken", "message": "Token has expired"})
			return
		}
		assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))

		var in struct {
			Repo       string         `json:"repo"`
			Collection string         `json:"collection"`
			Record     map[string]any `json:"record"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "did:plc:bot", in.Repo)
		assert.Equal(t, "app.bsky.feed.post", in.Collection)
		assert.Equal(t, "app.bsky.feed.post", in.Record["$type"])
		assert.Equal(t, "שלום", in.Record["text"])

		writeJSON(w, 200, map[string]string{"uri": "at://did:plc:bot/app.bsky.feed.post/abc", "cid": "bafyabc"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL, Identifier: "bot.test", Password: "secret", HTTPClient: srv.Client()})
	assert.Empty(t, c.DID())

	out, err := c.CreatePost(context.Background(), &bsky.FeedPost{Text: "שלום", CreatedAt: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:bot/app.bsky.feed.post/abc", out.URI)
	assert.Equal(t, "bafyabc", out.CID)
	assert.Equal(t, "did:plc:bot", c.DID())
	assert.Equal(t, int32(2), sessions.Load())
}

func TestClient_PutRecordAndUploadBlob(t *testing.T) {
	const blobCID = "bafkreiehxpuhtr5f6v4eu4byjo2j7kkrhjvd7psmfu4imnpdzb3bdqb7vy"

	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"did": "did:plc:publisher", "handle": "pub.test", "accessJwt": "a", "refreshJwt": "r"})
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "avatar", string(body))
		writeJSON(w, 200, map[string]any{"blob": map[string]any{
			"$type":    "blob",
			"ref":      map[string]string{"$link": blobCID},
			"mimeType": "image/png",
			"size":     len(body),
		}})
	})
	mux.HandleFunc("POST /xrpc/com.atproto.repo.putRecord", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Repo       string         `json:"repo"`
			Collection string         `json:"collection"`
			Rkey       string         `json:"rkey"`
			Record     map[string]any `json:"record"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "did:plc:publisher", in.Repo)
		assert.Equal(t, "app.bsky.feed.generator", in.Collection)
		assert.Equal(t, "hebrew-feed", in.Rkey)
		assert.Equal(t, "did:web:feed.test", in.Record["did"])
		writeJSON(w, 200, map[string]string{"uri": "at://did:plc:publisher/app.bsky.feed.generator/hebrew-feed", "cid": "bafygen"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL, Identifier: "pub.test", Password: "secret", HTTPClient: srv.Client()})
	ctx := context.Background()

	blob, err := c.UploadBlob(ctx, []byte("avatar"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.MimeType)
	assert.Equal(t, int64(6), blob.Size)
	assert.Equal(t, blobCID, blob.Ref.String())

	out, err := c.PutRecord(ctx, &PutRecordInput{
		Collection: "app.bsky.feed.generator",
		RKey:       "hebrew-feed",
		Record: &bsky.FeedGenerator{
			LexiconTypeID: "app.bsky.feed.generator",
			Did:           "did:web:feed.test",
			DisplayName:   "פיד עברית",
			CreatedAt:     "2024-01-01T00:00:00Z",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "bafygen", out.CID)
}

func TestClient_MissingCredentials(t *testing.T) {
	c := NewClient(ClientConfig{Host: "http://127.0.0.1:1"})
	err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = c.GetProfile(context.Background(), "did:plc:x")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestParseFeedGeneratorURI(t *testing.T) {
	uri := FeedGeneratorURI("did:plc:publisher", "hebrew-feed")
	assert.Equal(t, "at://did:plc:publisher/app.bsky.feed.generator/hebrew-feed", uri)

	publisher, name, err := ParseFeedGeneratorURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:publisher", publisher)
	assert.Equal(t, "hebrew-feed", name)

	for _, bad := range []string{
		"",
		"not-a-uri",
		"at://did:plc:publisher/app.bsky.feed.post/hebrew-feed",
		"at://did:plc:publisher/app.bsky.feed.generator",
	} {
		_, _, err := ParseFeedGeneratorURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewLimiter(t *testing.T) {
	assert.True(t, newLimiter(0).Allow())
	l := newLimiter(0.5)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
