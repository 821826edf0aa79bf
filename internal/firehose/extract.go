package firehose

import (
	"errors"

	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/lexicons"
	"hebrewfeed/internal/metrics"
)

// PostOp is a create or delete of a record in the tracked collection.
type PostOp struct {
	Action string
	URI    string
	Author string
	// CID and Post are set for creates only.
	CID  string
	Post *Post
}

// Extractor pulls post operations out of commit events.
type Extractor struct {
	collection lexicons.Collection
	recorder   metrics.Recorder
}

// NewExtractor returns an Extractor for the given collection.
func NewExtractor(collection lexicons.Collection, recorder metrics.Recorder) *Extractor {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Extractor{collection: collection, recorder: recorder}
}

// Extract returns the creates and deletes of tracked records in commit order.
// Updates are ignored. Ops whose path is not a valid "<nsid>/<rkey>" are
// skipped. A create whose block is missing or whose record does not decode
// is skipped; the rest of the commit is still processed. Commits flagged
// tooBig carry an incomplete block container and are skipped entirely. The
// container is only parsed when a tracked create needs it.
func (e *Extractor) Extract(c *Commit) []PostOp {
	if c.TooBig {
		log.Warn().Str("repo", c.Repo).Int64("seq", c.Seq).Int("ops", len(c.Ops)).Msg("firehose: skipping tooBig commit")
		return nil
	}

	var (
		ops    []PostOp
		blocks = NewBlockReader(c.Blocks)
	)

	for _, op := range c.Ops {
		collection, _, err := lexicons.ParsePath(op.Path)
		if err != nil {
			log.Debug().Err(err).Str("repo", c.Repo).Str("action", op.Action).Msg("firehose: skipping op with invalid path")
			continue
		}
		e.recorder.FirehoseOperation(op.Action, collection.MetricLabel())
		if collection != e.collection {
			continue
		}

		uri := "at://" + c.Repo + "/" + op.Path

		switch op.Action {
		case ActionDelete:
			ops = append(ops, PostOp{Action: ActionDelete, URI: uri, Author: c.Repo})

		case ActionCreate:
			if op.CID == nil {
				log.Debug().Str("uri", uri).Msg("firehose: create without cid")
				continue
			}
			raw, err := blocks.Get(*op.CID)
			if err != nil {
				log.Debug().Err(err).Str("uri", uri).Msg("firehose: record block unavailable")
				continue
			}
			post, err := DecodePost(raw)
			if err != nil {
				var recErr *RecordError
				if errors.As(err, &recErr) {
					e.recorder.PostDecodeFailed(recErr.Reason)
				}
				log.Debug().Err(err).Str("uri", uri).Msg("firehose: skipping record")
				continue
			}
			ops = append(ops, PostOp{
				Action: ActionCreate,
				URI:    uri,
				Author: c.Repo,
				CID:    op.CID.String(),
				Post:   post,
			})
		}
	}

	return ops
}
