// Package indexer turns batches of firehose commits into post table writes.
//
// For each batch the indexer folds post operations per URI in stream order,
// drops authors on the filtered list and texts without Hebrew script,
// classifies the remaining texts on a worker pool and applies the resulting
// deletes and inserts in one transaction.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"hebrewfeed/internal/database"
	"hebrewfeed/internal/firehose"
	"hebrewfeed/internal/language"
	"hebrewfeed/internal/metrics"
	"hebrewfeed/internal/tracing"
	"hebrewfeed/internal/workpool"
)

// Classifier labels prepared post text.
type Classifier interface {
	Classify(text string) language.Result
}

// FilterSet reports authors whose posts are never indexed.
type FilterSet interface {
	IsFiltered(did string) bool
}

// Config sizes the classification pool and sets the author policy.
type Config struct {
	Workers   int
	QueueSize int
	Policy    language.AuthorPolicy
}

// Indexer is a firehose.BatchHandler that writes Hebrew-script posts.
type Indexer struct {
	extractor *firehose.Extractor
	store     database.PostStore
	pool      *workpool.Pool[string, language.Result]
	filtered  FilterSet
	policy    language.AuthorPolicy
	metrics   metrics.Recorder
	now       func() time.Time
}

// New creates an Indexer and starts its classification workers. Call Close
// to stop them.
func New(cfg Config, extractor *firehose.Extractor, classifier Classifier, store database.PostStore, filtered FilterSet, rec metrics.Recorder) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Policy == (language.AuthorPolicy{}) {
		cfg.Policy = language.DefaultAuthorPolicy
	}
	if rec == nil {
		rec = metrics.Noop{}
	}

	classify := func(text string) language.Result {
		start := time.Now()
		res := classifier.Classify(text)
		rec.Classified(res.Label, time.Since(start))
		return res
	}

	return &Indexer{
		extractor: extractor,
		store:     store,
		pool:      workpool.New(cfg.Workers, cfg.QueueSize, classify),
		filtered:  filtered,
		policy:    cfg.Policy,
		metrics:   rec,
		now:       time.Now,
	}
}

// Close stops the classification workers.
func (ix *Indexer) Close() {
	ix.pool.Close()
}

// QueueDepth returns the number of texts waiting for a classifier.
func (ix *Indexer) QueueDepth() int {
	return ix.pool.QueueDepth()
}

// HandleBatch implements firehose.BatchHandler.
func (ix *Indexer) HandleBatch(ctx context.Context, commits []*firehose.Commit) (err error) {
	if len(commits) == 0 {
		return nil
	}
	ctx, span := tracing.BatchSpan(ctx, len(commits), commits[0].Seq, commits[len(commits)-1].Seq)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	start := time.Now()
	changes := foldOps(ix.extractor, commits)

	creates := ix.accept(changes.creates)
	results, err := ix.classify(ctx, creates)
	if err != nil {
		return err
	}
	ix.applyAuthorSignal(ctx, creates, results)

	now := ix.now().UTC()
	inserts := make([]database.Post, len(creates))
	for i, op := range creates {
		inserts[i] = database.Post{
			URI:                op.URI,
			CID:                op.CID,
			Author:             op.Author,
			CreatedAt:          op.Post.CreatedAt,
			IndexedAt:          now,
			EffectiveTimestamp: database.EffectiveTimestamp(op.Post.CreatedAt, now),
			ReplyTo:            op.Post.ReplyParent,
			ReplyRoot:          op.Post.ReplyRoot,
			Language:           results[i].Label,
		}
	}

	if err := ix.store.ApplyPosts(ctx, inserts, changes.deletes); err != nil {
		return fmt.Errorf("apply posts: %w", err)
	}
	ix.metrics.PostsWritten(len(inserts), len(changes.deletes))

	if len(inserts) > 0 || len(changes.deletes) > 0 {
		log.Debug().
			Int("commits", len(commits)).
			Int("inserted", len(inserts)).
			Int("deleted", len(changes.deletes)).
			Dur("took", time.Since(start)).
			Msg("indexer: batch written")
	}
	return nil
}

// accept drops creates by filtered authors and texts that cannot be Hebrew
// or Yiddish.
func (ix *Indexer) accept(creates []firehose.PostOp) []firehose.PostOp {
	kept := creates[:0]
	for _, op := range creates {
		if ix.filtered != nil && ix.filtered.IsFiltered(op.Author) {
			continue
		}
		if !language.HasHebrewScript(op.Post.Text) {
			continue
		}
		kept = append(kept, op)
	}
	return kept
}

// classify labels every create's prepared text on the worker pool. Only the
// text crosses into the pool.
func (ix *Indexer) classify(ctx context.Context, creates []firehose.PostOp) ([]language.Result, error) {
	futures := make([]*workpool.Future[language.Result], len(creates))
	for i, op := range creates {
		f, err := ix.pool.Submit(ctx, language.PrepareText(op.Post.Text, facetsOf(op.Post)))
		if err != nil {
			return nil, fmt.Errorf("submit classification: %w", err)
		}
		futures[i] = f
	}

	results := make([]language.Result, len(creates))
	for i, f := range futures {
		res, err := f.Wait(ctx)
		var panicErr *workpool.PanicError
		switch {
		case errors.As(err, &panicErr):
			log.Error().Interface("panic", panicErr.Value).Str("uri", creates[i].URI).Msg("indexer: classifier panicked")
			res = language.UnknownResult
		case err != nil:
			return nil, fmt.Errorf("await classification: %w", err)
		}
		results[i] = res
	}
	return results, nil
}

// applyAuthorSignal replaces weak results with the author's dominant
// language when the policy allows it. Lookup failures keep the post's own
// result.
func (ix *Indexer) applyAuthorSignal(ctx context.Context, creates []firehose.PostOp, results []language.Result) {
	var authors []string
	seen := make(map[string]struct{})
	for i, res := range results {
		if !ix.policy.NeedsAuthorSignal(res) {
			continue
		}
		if _, ok := seen[creates[i].Author]; !ok {
			seen[creates[i].Author] = struct{}{}
			authors = append(authors, creates[i].Author)
		}
	}
	if len(authors) == 0 {
		return
	}

	history, err := ix.store.AuthorLanguages(ctx, authors)
	if err != nil {
		log.Warn().Err(err).Int("authors", len(authors)).Msg("indexer: author language lookup failed")
		return
	}
	for i, res := range results {
		al, found := history[creates[i].Author]
		results[i] = ix.policy.Apply(res, al, found)
	}
}

func facetsOf(p *firehose.Post) []language.Facet {
	if len(p.Facets) == 0 {
		return nil
	}
	out := make([]language.Facet, len(p.Facets))
	for i, f := range p.Facets {
		out[i] = language.Facet{Start: f.Start, End: f.End}
	}
	return out
}
