// Package filtered maintains the set of accounts excluded from every feed:
// a configured list plus everyone who liked the opt-out control post.
package filtered

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/metrics"
)

const (
	likesPageSize = 100
	maxLikePages  = 1000
)

// LikesSource lists the accounts that liked a record, one page at a time.
// An empty returned cursor marks the last page.
type LikesSource interface {
	ListLikers(ctx context.Context, uri, cursor string, limit int) ([]string, string, error)
}

// Snapshot persists the last successfully fetched list across restarts.
type Snapshot interface {
	Load() ([]string, time.Time, error)
	Save(dids []string, updatedAt time.Time) error
}

// Config controls the filtered-users refresh.
type Config struct {
	// ControlPost is the AT-URI whose likers are filtered. Empty disables the fetch.
	ControlPost     string
	Constant        []string
	RefreshInterval time.Duration
	RetryInterval   time.Duration
}

type userSet struct {
	list  []string
	index map[string]struct{}
}

func newUserSet(groups ...[]string) *userSet {
	s := &userSet{index: make(map[string]struct{})}
	for _, g := range groups {
		for _, did := range g {
			if did == "" {
				continue
			}
			if _, ok := s.index[did]; ok {
				continue
			}
			s.index[did] = struct{}{}
			s.list = append(s.list, did)
		}
	}
	return s
}

// Service serves the current filtered set and refreshes it in the background.
// Readers always see a complete set; a failed refresh keeps the previous one.
type Service struct {
	cfg      Config
	source   LikesSource
	snapshot Snapshot
	metrics  metrics.Recorder

	set       atomic.Pointer[userSet]
	updatedAt atomic.Int64
}

// NewService creates a service that initially filters only cfg.Constant.
func NewService(cfg Config, source LikesSource, snapshot Snapshot, rec metrics.Recorder) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	s := &Service{cfg: cfg, source: source, snapshot: snapshot, metrics: rec}
	s.set.Store(newUserSet(cfg.Constant))
	return s
}

// LoadSnapshot merges the persisted list into the current set and returns
// when it was saved. A missing snapshot returns the zero time.
func (s *Service) LoadSnapshot() (time.Time, error) {
	if s.snapshot == nil {
		return time.Time{}, nil
	}
	dids, updatedAt, err := s.snapshot.Load()
	if err != nil {
		return time.Time{}, err
	}
	if len(dids) > 0 {
		s.store(newUserSet(s.cfg.Constant, dids), updatedAt)
		log.Info().Int("count", len(dids)).Time("updated_at", updatedAt).Msg("filtered: loaded snapshot")
	}
	return updatedAt, nil
}

// Refresh fetches the control post's likers and replaces the set.
func (s *Service) Refresh(ctx context.Context) error {
	likers, err := s.fetchLikers(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	set := newUserSet(s.cfg.Constant, likers)
	s.store(set, now)

	if s.snapshot != nil {
		if err := s.snapshot.Save(set.list, now); err != nil {
			log.Warn().Err(err).Msg("filtered: failed to persist snapshot")
		}
	}
	log.Info().Int("count", len(set.list)).Int("likers", len(likers)).Msg("filtered: refreshed")
	return nil
}

func (s *Service) store(set *userSet, updatedAt time.Time) {
	s.set.Store(set)
	s.updatedAt.Store(updatedAt.UnixMilli())
	s.metrics.FilteredUsers(len(set.list))
}

func (s *Service) fetchLikers(ctx context.Context) ([]string, error) {
	if s.cfg.ControlPost == "" {
		return nil, nil
	}

	var likers []string
	cursor := ""
	for range maxLikePages {
		page, next, err := s.source.ListLikers(ctx, s.cfg.ControlPost, cursor, likesPageSize)
		if err != nil {
			return nil, err
		}
		likers = append(likers, page...)
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}
	return likers, nil
}

// Run refreshes the set until ctx is cancelled. The first refresh is due one
// refresh interval after lastUpdate; failures are retried sooner.
func (s *Service) Run(ctx context.Context, lastUpdate time.Time) {
	delay := time.Duration(0)
	if !lastUpdate.IsZero() {
		delay = max(s.cfg.RefreshInterval-time.Since(lastUpdate), 0)
	}
	log.Debug().Dur("first_refresh_in", delay).Msg("filtered: refresh loop started")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := s.cfg.RefreshInterval
		if err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("retry_in", s.cfg.RetryInterval).Msg("filtered: refresh failed")
			next = s.cfg.RetryInterval
		}
		timer.Reset(next)
	}
}

// IsFiltered reports whether did is excluded from feeds.
func (s *Service) IsFiltered(did string) bool {
	_, ok := s.set.Load().index[did]
	return ok
}

// List returns a copy of the filtered DIDs.
func (s *Service) List() []string {
	return slices.Clone(s.set.Load().list)
}

// Count returns the number of filtered DIDs.
func (s *Service) Count() int {
	return len(s.set.Load().list)
}

// UpdatedAt returns when the set was last replaced from a fetch or snapshot.
func (s *Service) UpdatedAt() time.Time {
	ms := s.updatedAt.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
