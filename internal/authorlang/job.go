// Package authorlang periodically recomputes each author's language
// distribution, which the indexer uses to settle low-confidence posts.
package authorlang

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is used when no refresh interval is configured.
const DefaultInterval = time.Hour

// Rebuilder replaces the author_language table from the post table and
// returns the number of authors written.
type Rebuilder interface {
	RebuildAuthorLanguages(ctx context.Context) (int64, error)
}

// Job runs the rebuild on a fixed interval.
type Job struct {
	store    Rebuilder
	interval time.Duration
}

// NewJob creates a Job. A non-positive interval selects DefaultInterval.
func NewJob(store Rebuilder, interval time.Duration) *Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Job{store: store, interval: interval}
}

// RunOnce rebuilds the table once.
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()
	n, err := j.store.RebuildAuthorLanguages(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("authors", n).Dur("took", time.Since(start)).Msg("authorlang: rebuilt author languages")
	return nil
}

// Run rebuilds immediately and then every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Dur("retry_in", j.interval).Msg("authorlang: rebuild failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
