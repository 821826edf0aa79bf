package firehose

import (
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/ipfs/go-cid"
)

// Repository operation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Commit is one repository commit event from the stream.
type Commit struct {
	Repo   string
	Seq    int64
	Time   time.Time
	TooBig bool
	Ops    []RepoOp
	// Blocks is the CAR-encoded block container carried by the event.
	Blocks []byte
}

// RepoOp is a single operation within a commit.
type RepoOp struct {
	Action string
	Path   string
	// CID is nil for deletes.
	CID *cid.Cid
}

func commitFromEvent(evt *comatproto.SyncSubscribeRepos_Commit) *Commit {
	c := &Commit{
		Repo:   evt.Repo,
		Seq:    evt.Seq,
		TooBig: evt.TooBig,
		Blocks: []byte(evt.Blocks),
		Ops:    make([]RepoOp, 0, len(evt.Ops)),
	}
	if dt, err := syntax.ParseDatetimeLenient(evt.Time); err == nil {
		c.Time = dt.Time()
	}
	for _, op := range evt.Ops {
		if op == nil {
			continue
		}
		ro := RepoOp{Action: op.Action, Path: op.Path}
		if op.Cid != nil {
			id := cid.Cid(*op.Cid)
			ro.CID = &id
		}
		c.Ops = append(c.Ops, ro)
	}
	return c
}
