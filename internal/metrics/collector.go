package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current values for gauge metrics.
// A nil function leaves its gauge untouched; returning a negative count
// indicates the source is unavailable.
type StatsSource struct {
	Cursor          func() int64
	PostCount       func(ctx context.Context) int64
	BlockCacheSize  func() int
	FilteredCount   func() int
	ClassifierQueue func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func (p *Prometheus) StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	p.collect(ctx, src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.collect(ctx, src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("metrics: collector started")
}

func (p *Prometheus) collect(ctx context.Context, src StatsSource) {
	if src.Cursor != nil {
		p.cursorGauge.Set(float64(src.Cursor()))
	}
	if src.PostCount != nil {
		if n := src.PostCount(ctx); n >= 0 {
			p.indexedPosts.Set(float64(n))
		}
	}
	if src.BlockCacheSize != nil {
		p.blockCacheEntries.Set(float64(src.BlockCacheSize()))
	}
	if src.FilteredCount != nil {
		p.filteredUsers.Set(float64(src.FilteredCount()))
	}
	if src.ClassifierQueue != nil {
		p.classifierQueueDepth.Set(float64(src.ClassifierQueue()))
	}
}
