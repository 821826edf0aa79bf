package atproto

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// PDSCacheSize bounds the number of remembered DID → PDS resolutions.
	PDSCacheSize = 10000
	// PDSCacheTTL is how long a resolution is trusted; accounts can migrate.
	PDSCacheTTL = time.Hour
)

// endpointCache maps DIDs to their resolved PDS endpoints.
type endpointCache struct {
	lru *expirable.LRU[string, string]
}

func newEndpointCache() *endpointCache {
	return &endpointCache{lru: expirable.NewLRU[string, string](PDSCacheSize, nil, PDSCacheTTL)}
}

func (c *endpointCache) Get(did string) (string, bool) {
	return c.lru.Get(did)
}

func (c *endpointCache) Add(did, endpoint string) {
	c.lru.Add(did, endpoint)
}

func (c *endpointCache) Len() int {
	return c.lru.Len()
}
