// Package firehose consumes the relay's repository event stream, decodes the
// post operations it carries and hands them to the indexer in batches while
// checkpointing the stream cursor.
package firehose

import (
	"time"

	"hebrewfeed/internal/lexicons"
)

// DefaultRelayEndpoint is the public relay serving com.atproto.sync.subscribeRepos.
const DefaultRelayEndpoint = "wss://bsky.network"

// Config holds configuration for the subscription manager and relay stream.
type Config struct {
	// Endpoint is the relay WebSocket base URL.
	Endpoint string

	// Service names the cursor row; it defaults to Endpoint.
	Service string

	// Collection is the record collection extracted from commits.
	Collection lexicons.Collection

	// ReconnectDelay is the pause between stream sessions.
	ReconnectDelay time.Duration

	// BatchSize and BatchWait bound each batch handed to the handler.
	BatchSize int
	BatchWait time.Duration

	// ReadTimeout closes a connection that stays silent this long.
	ReadTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoint:         DefaultRelayEndpoint,
		Service:          DefaultRelayEndpoint,
		Collection:       lexicons.CollectionPost,
		ReconnectDelay:   3 * time.Second,
		BatchSize:        2000,
		BatchWait:        10 * time.Second,
		ReadTimeout:      60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

func (c *Config) service() string {
	if c.Service != "" {
		return c.Service
	}
	return c.Endpoint
}
