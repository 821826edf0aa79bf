package atproto

import (
	"fmt"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

// FeedGeneratorCollection is the NSID of feed generator declaration records.
const FeedGeneratorCollection = "app.bsky.feed.generator"

// ResolveATURI parses an AT-URI and returns its components
// AT-URI format: at://did:plc:abc123/app.bsky.feed.post/3jxyabc
func ResolveATURI(uri string) (did string, collection string, rkey string, err error) {
	atURI, err := syntax.ParseATURI(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid AT-URI: %w", err)
	}

	did = atURI.Authority().String()
	collection = atURI.Collection().String()
	rkey = atURI.RecordKey().String()

	return did, collection, rkey, nil
}

// FeedGeneratorURI returns the AT-URI of the generator record name published by did.
func FeedGeneratorURI(did, name string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, FeedGeneratorCollection, name)
}

// ParseFeedGeneratorURI splits a feed generator AT-URI into the publisher
// and the record key.
func ParseFeedGeneratorURI(uri string) (publisher, name string, err error) {
	did, collection, rkey, err := ResolveATURI(uri)
	if err != nil {
		return "", "", err
	}
	if collection != FeedGeneratorCollection {
		return "", "", fmt.Errorf("expected %s collection, got %s", FeedGeneratorCollection, collection)
	}
	if rkey == "" {
		return "", "", fmt.Errorf("missing record key in %s", uri)
	}
	return did, rkey, nil
}
