package firehose

import (
	"bytes"
	"testing"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

const testRepo = "did:plc:testauthor"

func encodePost(t *testing.T, post *bsky.FeedPost) []byte {
	t.Helper()
	post.LexiconTypeID = "app.bsky.feed.post"
	var buf bytes.Buffer
	require.NoError(t, post.MarshalCBOR(&buf))
	return buf.Bytes()
}

func blockCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	c, err := cid.Prefix{
		Version:  1,
		Codec:    cid.DagCBOR,
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}.Sum(data)
	require.NoError(t, err)
	return c
}

// buildCAR writes blocks into a CAR container whose root is the first block.
func buildCAR(t *testing.T, blocks ...[]byte) ([]byte, []cid.Cid) {
	t.Helper()
	cids := make([]cid.Cid, len(blocks))
	for i, b := range blocks {
		cids[i] = blockCID(t, b)
	}

	var buf bytes.Buffer
	require.NoError(t, car.WriteHeader(&car.CarHeader{Roots: cids[:1], Version: 1}, &buf))
	for i, b := range blocks {
		require.NoError(t, carutil.LdWrite(&buf, cids[i].Bytes(), b))
	}
	return buf.Bytes(), cids
}

// cborStringMap encodes a map of short strings as DAG-CBOR with keys in
// canonical order (callers pass them sorted by length, then bytes).
func cborStringMap(pairs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xa0 + byte(len(pairs)/2))
	for _, s := range pairs {
		switch {
		case len(s) < 24:
			buf.WriteByte(0x60 + byte(len(s)))
		default:
			buf.WriteByte(0x78)
			buf.WriteByte(byte(len(s)))
		}
		buf.WriteString(s)
	}
	return buf.Bytes()
}

func hebrewPost(text string) *bsky.FeedPost {
	return &bsky.FeedPost{
		Text:      text,
		CreatedAt: "2024-05-01T12:00:00.000Z",
		Langs:     []string{"he"},
	}
}
