package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdcatalog/pkg/requestcontext"
)

type recordingSweeper struct {
	mu    sync.Mutex
	calls []context.Context
	err   error
	// done is closed once the sweeper has been called min times.
	done chan struct{}
	min  int
}

func (r *recordingSweeper) InvalidateExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ctx)
	if r.done != nil && len(r.calls) == r.min {
		close(r.done)
	}
	return 1, r.err
}

func (r *recordingSweeper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOncePinsTimeAndRequestID(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := &recordingSweeper{}
	w := NewWorker(rec, time.Hour, WithLogger(quietLogger()), WithClock(func() time.Time { return fixed }))

	n, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, fixed, requestcontext.Now(rec.calls[0]))
	assert.Contains(t, requestcontext.RequestID(rec.calls[0]), "sweep-")
}

func TestRunOnceReturnsSweepError(t *testing.T) {
	rec := &recordingSweeper{err: errors.New("neo4j unavailable")}
	w := NewWorker(rec, time.Hour, WithLogger(quietLogger()))

	_, err := w.RunOnce(context.Background())

	assert.EqualError(t, err, "neo4j unavailable")
}

func TestRunKeepsSweepingAfterFailures(t *testing.T) {
	rec := &recordingSweeper{err: errors.New("boom"), done: make(chan struct{}), min: 3}
	w := NewWorker(rec, 5*time.Millisecond, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- w.Run(ctx) }()

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper was not called repeatedly")
	}
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.GreaterOrEqual(t, rec.count(), 3)
}

func TestRunSweepsImmediately(t *testing.T) {
	rec := &recordingSweeper{done: make(chan struct{}), min: 1}
	w := NewWorker(rec, time.Hour, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep should not wait for the interval")
	}
}
