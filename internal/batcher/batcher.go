// Package batcher groups a stream of items into bounded batches.
package batcher

import (
	"context"
	"time"
)

// Run reads items from in and hands them to flush in batches of at most size
// items. A batch is flushed as soon as it holds size items or when maxWait has
// elapsed since its first item arrived, whichever comes first. Empty batches
// are never flushed. A maxWait of zero disables the time bound.
//
// Run returns nil after in is closed and the remaining items are flushed,
// ctx.Err() when the context ends, or the first error returned by flush.
// Items in a batch keep their arrival order.
func Run[T any](ctx context.Context, in <-chan T, size int, maxWait time.Duration, flush func(context.Context, []T) error) error {
	if size <= 0 {
		size = 1
	}

	buf := make([]T, 0, size)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	emit := func() error {
		timer.Stop()
		if len(buf) == 0 {
			return nil
		}
		batch := buf
		buf = make([]T, 0, size)
		return flush(ctx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case item, ok := <-in:
			if !ok {
				return emit()
			}
			buf = append(buf, item)
			if len(buf) == 1 && maxWait > 0 {
				timer.Reset(maxWait)
			}
			if len(buf) >= size {
				if err := emit(); err != nil {
					return err
				}
			}

		case <-timer.C:
			if err := emit(); err != nil {
				return err
			}
		}
	}
}
