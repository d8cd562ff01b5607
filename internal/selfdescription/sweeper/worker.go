// Package sweeper runs the periodic expiry sweep that moves ACTIVE
// self-descriptions past their expiration time to EOL.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sdcatalog/pkg/requestcontext"
)

// Sweeper is the part of the lifecycle service the worker drives.
type Sweeper interface {
	InvalidateExpired(ctx context.Context) (int, error)
}

// Worker calls the sweeper on a fixed interval until its context ends.
type Worker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithClock replaces the wall clock used to stamp each sweep.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func NewWorker(sweeper Sweeper, interval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		sweeper:  sweeper,
		interval: interval,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps once immediately, then on every tick. A failed sweep is logged
// and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "expiry sweeper started", "interval", w.interval.String())
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep with one pinned instant.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ctx = requestcontext.WithRequestID(ctx, "sweep-"+uuid.NewString())
	ctx = requestcontext.WithTime(ctx, w.now())

	examined, err := w.sweeper.InvalidateExpired(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "expiry sweep failed",
			"error", err,
			"examined", examined,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return examined, err
}
