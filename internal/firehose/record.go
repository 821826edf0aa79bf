package firehose

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/atdata"
	"github.com/bluesky-social/indigo/atproto/syntax"

	"hebrewfeed/internal/lexicons"
)

// maxPostTextBytes is the lexicon's maxLength for post text.
const maxPostTextBytes = 3000

// Reasons a record fails to decode.
const (
	ReasonUndecodable  = "undecodable"
	ReasonWrongType    = "wrong-type"
	ReasonMissingField = "missing-field"
	ReasonInvalidField = "invalid-field"
)

// RecordError describes a record that could not be decoded as a post.
type RecordError struct {
	Reason string
	Field  string
	Err    error
}

func (e *RecordError) Error() string {
	msg := "decode post: " + e.Reason
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecordError) Unwrap() error { return e.Err }

// ByteSlice is an annotated byte range of a post's text.
type ByteSlice struct {
	Start int
	End   int
}

// Post is the subset of an app.bsky.feed.post record the indexer uses.
type Post struct {
	Text string
	// CreatedAt is zero when the record's timestamp is malformed.
	CreatedAt   time.Time
	Langs       []string
	Facets      []ByteSlice
	ReplyParent string
	ReplyRoot   string
}

// DecodePost decodes a DAG-CBOR record block into a Post, checking the
// record type and the fields the feeds depend on.
func DecodePost(raw []byte) (*Post, error) {
	generic, err := atdata.UnmarshalCBOR(raw)
	if err != nil {
		return nil, &RecordError{Reason: ReasonUndecodable, Err: err}
	}
	if typ, _ := generic["$type"].(string); typ != lexicons.CollectionPost.String() {
		return nil, &RecordError{Reason: ReasonWrongType, Field: "$type", Err: fmt.Errorf("got %q", typ)}
	}
	if _, ok := generic["text"].(string); !ok {
		return nil, &RecordError{Reason: ReasonMissingField, Field: "text"}
	}
	if _, ok := generic["createdAt"].(string); !ok {
		return nil, &RecordError{Reason: ReasonMissingField, Field: "createdAt"}
	}

	var rec bsky.FeedPost
	if err := rec.UnmarshalCBOR(bytes.NewReader(raw)); err != nil {
		return nil, &RecordError{Reason: ReasonInvalidField, Err: err}
	}
	if len(rec.Text) > maxPostTextBytes {
		return nil, &RecordError{Reason: ReasonInvalidField, Field: "text", Err: fmt.Errorf("%d bytes", len(rec.Text))}
	}

	post := &Post{
		Text:      rec.Text,
		CreatedAt: parseCreatedAt(rec.CreatedAt),
		Langs:     rec.Langs,
	}

	if rec.Reply != nil {
		if rec.Reply.Parent == nil || rec.Reply.Root == nil {
			return nil, &RecordError{Reason: ReasonMissingField, Field: "reply"}
		}
		if _, err := syntax.ParseATURI(rec.Reply.Parent.Uri); err != nil {
			return nil, &RecordError{Reason: ReasonInvalidField, Field: "reply.parent", Err: err}
		}
		if _, err := syntax.ParseATURI(rec.Reply.Root.Uri); err != nil {
			return nil, &RecordError{Reason: ReasonInvalidField, Field: "reply.root", Err: err}
		}
		post.ReplyParent = rec.Reply.Parent.Uri
		post.ReplyRoot = rec.Reply.Root.Uri
	}

	for _, f := range rec.Facets {
		if f == nil || f.Index == nil {
			continue
		}
		post.Facets = append(post.Facets, ByteSlice{Start: int(f.Index.ByteStart), End: int(f.Index.ByteEnd)})
	}

	return post, nil
}

// parseCreatedAt accepts the strict lexicon datetime and falls back to the
// lenient parser; anything else yields the zero time.
func parseCreatedAt(s string) time.Time {
	if dt, err := syntax.ParseDatetime(s); err == nil {
		return dt.Time()
	}
	if dt, err := syntax.ParseDatetimeLenient(s); err == nil {
		return dt.Time()
	}
	return time.Time{}
}
