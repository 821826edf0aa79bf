package authorlang

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRebuilder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRebuilder) RebuildAuthorLanguages(context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestNewJob_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, NewJob(&fakeRebuilder{}, 0).interval)
	assert.Equal(t, time.Minute, NewJob(&fakeRebuilder{}, time.Minute).interval)
}

func TestJob_RunOnce(t *testing.T) {
	store := &fakeRebuilder{}
	require.NoError(t, NewJob(store, time.Hour).RunOnce(context.Background()))
	assert.Equal(t, int32(1), store.calls.Load())

	store.err = errors.New("locked")
	assert.EqualError(t, NewJob(store, time.Hour).RunOnce(context.Background()), "locked")
}

func TestJob_RunRepeatsAfterFailure(t *testing.T) {
	store := &fakeRebuilder{err: errors.New("locked")}
	job := NewJob(store, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
