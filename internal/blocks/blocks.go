// Package blocks caches the accounts each feed viewer has blocked.
package blocks

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"hebrewfeed/internal/metrics"
)

const (
	// CacheSize is the number of viewers whose block lists are kept.
	CacheSize = 1000
	// PageSize is the number of block records requested per page.
	PageSize = 50
	// maxPages bounds a single fetch for accounts with huge block lists.
	maxPages = 200
	// fetchTimeout bounds a shared fetch once it no longer follows the
	// requesting context.
	fetchTimeout = 30 * time.Second
)

// Source lists the DIDs blocked by actor, one page at a time. An empty
// returned cursor marks the last page.
type Source interface {
	ListBlocks(ctx context.Context, actor, cursor string, limit int) ([]string, string, error)
}

// Service answers "whom does this actor block" from an LRU cache backed by
// the actor's repository. Entries expire after the configured TTL.
type Service struct {
	source  Source
	cache   *expirable.LRU[string, []string]
	group   singleflight.Group
	metrics metrics.Recorder
}

// NewService creates a block list cache with the given entry TTL.
func NewService(source Source, ttl time.Duration, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{
		source:  source,
		cache:   expirable.NewLRU[string, []string](CacheSize, nil, ttl),
		metrics: rec,
	}
}

// GetBlocksFor returns the DIDs blocked by actor. A failed fetch yields an
// empty list and is not cached, so the next request retries.
func (s *Service) GetBlocksFor(ctx context.Context, actor string) []string {
	if actor == "" {
		return nil
	}
	if blocks, ok := s.cache.Get(actor); ok {
		s.metrics.BlockCacheLookup(true)
		return blocks
	}
	s.metrics.BlockCacheLookup(false)

	v, err, _ := s.group.Do(actor, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		blocks, complete, err := s.fetch(fetchCtx, actor)
		if err != nil {
			return nil, err
		}
		if !complete {
			log.Warn().Str("actor", actor).Int("blocks", len(blocks)).Int("pages", maxPages).Msg("blocks: block list truncated, not caching")
			return blocks, nil
		}
		s.cache.Add(actor, blocks)
		return blocks, nil
	})
	if err != nil {
		s.metrics.BlockFetchFailed()
		log.Warn().Err(err).Str("actor", actor).Msg("blocks: failed to fetch block list")
		return []string{}
	}
	return v.([]string)
}

// fetch pages through actor's block list. complete is false when the list
// was cut off at maxPages.
func (s *Service) fetch(ctx context.Context, actor string) (blocks []string, complete bool, err error) {
	blocks = []string{}
	cursor := ""
	for range maxPages {
		page, next, err := s.source.ListBlocks(ctx, actor, cursor, PageSize)
		if err != nil {
			return nil, false, err
		}
		blocks = append(blocks, page...)
		if next == "" || len(page) < PageSize {
			return blocks, true, nil
		}
		cursor = next
	}
	return blocks, false, nil
}

// Len returns the number of cached block lists.
func (s *Service) Len() int {
	return s.cache.Len()
}
