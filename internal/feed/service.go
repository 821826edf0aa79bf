// Package feed implements the feed algorithms served through
// app.bsky.feed.getFeedSkeleton.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hebrewfeed/internal/metrics"
	"hebrewfeed/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Page size bounds for a skeleton request.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ErrUnsupportedAlgorithm is returned for feed names with no registered algorithm.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// Request is one getFeedSkeleton call after parameter validation.
type Request struct {
	Cursor string
	Limit  int
	// Viewer is the requesting account's DID, empty when anonymous.
	Viewer string
}

// SkeletonItem references one post in a skeleton.
type SkeletonItem struct {
	Post string `json:"post"`
}

// Skeleton is one page of a feed.
type Skeleton struct {
	Feed   []SkeletonItem `json:"feed"`
	Cursor string         `json:"cursor,omitempty"`
}

// Service dispatches skeleton requests to registered algorithms.
type Service struct {
	registry *Registry
	metrics  metrics.Recorder
}

// NewService creates a Service over registry.
func NewService(registry *Registry, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{registry: registry, metrics: rec}
}

// Registry returns the algorithms served by s.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Generate returns one page of the feed registered under name.
func (s *Service) Generate(ctx context.Context, name string, req Request) (*Skeleton, error) {
	algo, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, name)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	authenticated := req.Viewer != ""
	ctx, span := tracing.FeedSpan(ctx, name, authenticated)
	defer span.End()

	start := time.Now()
	skeleton, err := algo.Generate(ctx, req)
	took := time.Since(start)

	status := "ok"
	switch {
	case errors.Is(err, ErrMalformedCursor):
		status = "bad_request"
	case err != nil:
		status = "error"
	}
	s.metrics.FeedGenerated(name, status, authenticated, took)
	tracing.EndWithError(span, err)

	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", name, err)
	}
	if skeleton.Feed == nil {
		skeleton.Feed = []SkeletonItem{}
	}

	log.Debug().
		Str("feed", name).
		Str("viewer", req.Viewer).
		Int("items", len(skeleton.Feed)).
		Dur("took", took).
		Msg("feed: skeleton generated")

	return skeleton, nil
}
