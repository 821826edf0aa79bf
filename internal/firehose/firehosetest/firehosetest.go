// Package firehosetest builds commit events with real CAR block containers
// for tests of code downstream of the firehose.
package firehosetest

import (
	"bytes"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"

	"hebrewfeed/internal/firehose"
)

// PostCollection is the collection of the records built here.
const PostCollection = "app.bsky.feed.post"

// CommitBuilder accumulates operations for one commit.
type CommitBuilder struct {
	repo   string
	seq    int64
	time   time.Time
	ops    []firehose.RepoOp
	blocks [][]byte
	cids   []cid.Cid
}

// NewCommit starts a commit for repo with sequence number seq.
func NewCommit(repo string, seq int64) *CommitBuilder {
	return &CommitBuilder{repo: repo, seq: seq, time: time.Now()}
}

// At sets the commit's event time.
func (b *CommitBuilder) At(t time.Time) *CommitBuilder {
	b.time = t
	return b
}

// Create adds a post create at rkey. A nil post adds a create whose block is
// missing from the container.
func (b *CommitBuilder) Create(rkey string, post *bsky.FeedPost) *CommitBuilder {
	var raw []byte
	if post != nil {
		raw = EncodePost(post)
	} else {
		raw = []byte(rkey)
	}
	id := BlockCID(raw)
	if post != nil {
		b.blocks = append(b.blocks, raw)
		b.cids = append(b.cids, id)
	}
	b.ops = append(b.ops, firehose.RepoOp{Action: firehose.ActionCreate, Path: PostCollection + "/" + rkey, CID: &id})
	return b
}

// Delete adds a post delete at rkey.
func (b *CommitBuilder) Delete(rkey string) *CommitBuilder {
	b.ops = append(b.ops, firehose.RepoOp{Action: firehose.ActionDelete, Path: PostCollection + "/" + rkey})
	return b
}

// Build returns the commit with its CAR container.
func (b *CommitBuilder) Build() *firehose.Commit {
	return &firehose.Commit{
		Repo:   b.repo,
		Seq:    b.seq,
		Time:   b.time,
		Ops:    b.ops,
		Blocks: BuildCAR(b.blocks, b.cids),
	}
}

// PostURI returns the AT-URI of the post at rkey in repo.
func PostURI(repo, rkey string) string {
	return "at://" + repo + "/" + PostCollection + "/" + rkey
}

// Post returns a post record with the given text created at createdAt.
func Post(text string, createdAt time.Time) *bsky.FeedPost {
	return &bsky.FeedPost{
		Text:      text,
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	}
}

// EncodePost encodes a post as a DAG-CBOR record block.
func EncodePost(post *bsky.FeedPost) []byte {
	post.LexiconTypeID = PostCollection
	var buf bytes.Buffer
	if err := post.MarshalCBOR(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BlockCID returns the CIDv1 (dag-cbor, sha2-256) of data.
func BlockCID(data []byte) cid.Cid {
	c, err := cid.Prefix{
		Version:  1,
		Codec:    cid.DagCBOR,
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}.Sum(data)
	if err != nil {
		panic(err)
	}
	return c
}

// BuildCAR writes blocks into a CAR container. The first block is the root;
// an empty container gets a placeholder root.
func BuildCAR(blocks [][]byte, cids []cid.Cid) []byte {
	roots := cids
	if len(roots) == 0 {
		roots = []cid.Cid{BlockCID([]byte("empty"))}
	}

	var buf bytes.Buffer
	if err := car.WriteHeader(&car.CarHeader{Roots: roots[:1], Version: 1}, &buf); err != nil {
		panic(err)
	}
	for i, blk := range blocks {
		if err := carutil.LdWrite(&buf, cids[i].Bytes(), blk); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}
