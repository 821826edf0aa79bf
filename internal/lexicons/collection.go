// Package lexicons names the AT Protocol collections the feed generator
// reads and writes.
package lexicons

import (
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

// Collection is the NSID of a record collection.
// Use these constants instead of magic strings for type safety.
type Collection string

const (
	CollectionPost          Collection = "app.bsky.feed.post"
	CollectionLike          Collection = "app.bsky.feed.like"
	CollectionBlock         Collection = "app.bsky.graph.block"
	CollectionFeedGenerator Collection = "app.bsky.feed.generator"
)

// String returns the NSID.
func (c Collection) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the Collection.
func (c Collection) DisplayName() string {
	switch c {
	case CollectionPost:
		return "Post"
	case CollectionLike:
		return "Like"
	case CollectionBlock:
		return "Block"
	case CollectionFeedGenerator:
		return "Feed generator"
	default:
		return string(c)
	}
}

// Known reports whether c is one of the collections declared above.
func (c Collection) Known() bool {
	switch c {
	case CollectionPost, CollectionLike, CollectionBlock, CollectionFeedGenerator:
		return true
	default:
		return false
	}
}

// MetricLabel returns the NSID for known collections and "other" for the
// rest, keeping metric label values bounded.
func (c Collection) MetricLabel() string {
	if c.Known() {
		return string(c)
	}
	return "other"
}

// ParsePath splits a repository path ("<collection>/<rkey>") and checks the
// collection is a valid NSID and the rkey a valid record key.
func ParsePath(path string) (Collection, syntax.RecordKey, error) {
	nsid, rkey, ok := strings.Cut(path, "/")
	if !ok {
		return "", "", fmt.Errorf("path %q: missing record key", path)
	}
	collection, err := syntax.ParseNSID(nsid)
	if err != nil {
		return "", "", fmt.Errorf("path %q: %w", path, err)
	}
	key, err := syntax.ParseRecordKey(rkey)
	if err != nil {
		return "", "", fmt.Errorf("path %q: %w", path, err)
	}
	return Collection(collection), key, nil
}
