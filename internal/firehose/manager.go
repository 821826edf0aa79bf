package firehose

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"hebrewfeed/internal/batcher"
	"hebrewfeed/internal/metrics"
)

// BatchHandler processes a batch of commits in stream order.
type BatchHandler interface {
	HandleBatch(ctx context.Context, commits []*Commit) error
}

// CursorStore persists the last processed sequence number per service.
type CursorStore interface {
	GetCursor(ctx context.Context, service string) (cursor int64, ok bool, err error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Manager supervises the relay subscription. Each session resumes from the
// persisted cursor, batches incoming commits, hands every batch to the
// handler and then checkpoints the batch's last sequence number.
type Manager struct {
	config   *Config
	source   Source
	cursors  CursorStore
	handler  BatchHandler
	recorder metrics.Recorder

	cursor    atomic.Int64
	lastEvent atomic.Int64 // unix nanoseconds, 0 until the first batch
	sessions  atomic.Int64
	handled   atomic.Int64
}

// NewManager wires a manager. A nil recorder disables metrics.
func NewManager(config *Config, source Source, cursors CursorStore, handler BatchHandler, recorder metrics.Recorder) *Manager {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Manager{
		config:   config,
		source:   source,
		cursors:  cursors,
		handler:  handler,
		recorder: recorder,
	}
}

// Cursor returns the last checkpointed sequence number, or 0.
func (m *Manager) Cursor() int64 {
	return m.cursor.Load()
}

// LastEventTime returns the timestamp of the newest handled commit, or the
// zero time before the first batch.
func (m *Manager) LastEventTime() time.Time {
	ns := m.lastEvent.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Sessions returns how many stream sessions have been started.
func (m *Manager) Sessions() int64 {
	return m.sessions.Load()
}

// IsConnected reports whether the source's connection is currently open.
// Sources that do not track their connection report false.
func (m *Manager) IsConnected() bool {
	if c, ok := m.source.(interface{ IsConnected() bool }); ok {
		return c.IsConnected()
	}
	return false
}

// CommitsHandled returns how many commits have been passed to the handler.
func (m *Manager) CommitsHandled() int64 {
	return m.handled.Load()
}

// Run keeps a stream session alive until ctx is done, waiting reconnectDelay
// after every session end. Session errors are logged, never returned.
func (m *Manager) Run(ctx context.Context, reconnectDelay time.Duration) {
	for {
		if ctx.Err() != nil {
			log.Info().Msg("firehose: context cancelled, stopping manager")
			return
		}

		err := m.session(ctx)
		switch {
		case ctx.Err() != nil:
			log.Info().Msg("firehose: context cancelled, stopping manager")
			return
		case err != nil:
			log.Warn().Err(err).Dur("reconnect_in", reconnectDelay).Msg("firehose: session ended")
		default:
			log.Info().Dur("reconnect_in", reconnectDelay).Msg("firehose: session closed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (m *Manager) session(ctx context.Context) error {
	m.sessions.Add(1)

	var start *int64
	cursor, ok, err := m.cursors.GetCursor(ctx, m.config.service())
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	if ok {
		start = &cursor
		if cursor > m.cursor.Load() {
			m.cursor.Store(cursor)
		}
		log.Info().Int64("cursor", cursor).Msg("firehose: resuming from cursor")
	} else {
		log.Info().Msg("firehose: no cursor stored, starting from live head")
	}

	commits := make(chan *Commit, m.config.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(commits)
		return m.source.Stream(gctx, start, commits)
	})
	g.Go(func() error {
		return batcher.Run(gctx, commits, m.config.BatchSize, m.config.BatchWait, m.handleBatch)
	})
	return g.Wait()
}

// handleBatch runs the handler and checkpoints the cursor. Handler failures
// are logged and the cursor still advances; only a failure to persist the
// cursor ends the session.
func (m *Manager) handleBatch(ctx context.Context, batch []*Commit) error {
	started := time.Now()
	m.runHandler(ctx, batch)
	m.handled.Add(int64(len(batch)))

	last := batch[len(batch)-1]
	eventTime := last.Time
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	m.lastEvent.Store(eventTime.UnixNano())
	m.recorder.CommitsHandled(len(batch), time.Since(eventTime), time.Since(started))

	if last.Seq <= m.cursor.Load() {
		log.Debug().Int64("seq", last.Seq).Int64("cursor", m.cursor.Load()).Msg("firehose: batch does not advance cursor")
		return nil
	}
	if err := m.cursors.UpdateCursor(ctx, m.config.service(), last.Seq); err != nil {
		return fmt.Errorf("persist cursor %d: %w", last.Seq, err)
	}
	m.cursor.Store(last.Seq)
	return nil
}

func (m *Manager) runHandler(ctx context.Context, batch []*Commit) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("commits", len(batch)).Msg("firehose: batch handler panicked")
		}
	}()
	if err := m.handler.HandleBatch(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).
			Int("commits", len(batch)).
			Int64("first_seq", batch[0].Seq).
			Int64("last_seq", batch[len(batch)-1].Seq).
			Msg("firehose: batch handler failed")
	}
}
