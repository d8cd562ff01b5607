// Package service coordinates the metadata, blob and graph stores so the
// lifecycle of a self-description looks like one consistent record.
//
// The metadata row is the source of truth. Every mutation runs in one
// metadata transaction that holds the row lock while the graph is updated;
// the raw document is written after commit.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks BlobStore,GraphStore,EventPublisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/internal/selfdescription/events"
	"sdcatalog/internal/selfdescription/metrics"
	"sdcatalog/internal/selfdescription/models"
	dErrors "sdcatalog/pkg/domain-errors"
	"sdcatalog/pkg/platform/sentinel"
)

var tracer = otel.Tracer("sdcatalog/internal/selfdescription/service")

// MetadataStore persists lifecycle records. Methods called with the context
// handed to a RunInTx callback take part in that transaction.
type MetadataStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindActiveForUpdate(ctx context.Context, subjectID string) (*models.Record, error)
	FindByHashForUpdate(ctx context.Context, hash string) (*models.Record, error)
	FindByHash(ctx context.Context, hash string) (*models.Record, error)
	Insert(ctx context.Context, r *models.Record) error
	UpdateStatus(ctx context.Context, hash string, status models.Status, at time.Time) error
	Delete(ctx context.Context, hash string) error
	Count(ctx context.Context, f models.Filter) (int, error)
	List(ctx context.Context, f models.Filter) ([]*models.Record, error)
	ForEachExpired(ctx context.Context, now time.Time, fn func(ctx context.Context, hash string) error) error
}

// BlobStore holds raw documents keyed by content hash.
type BlobStore interface {
	Store(ctx context.Context, hash string, content []byte) error
	Read(ctx context.Context, hash string) ([]byte, error)
	Delete(ctx context.Context, hash string) error
}

// GraphStore holds the claims of every ACTIVE subject.
type GraphStore interface {
	AddClaims(ctx context.Context, claims []ntriples.Claim, subjectID string) error
	DeleteClaims(ctx context.Context, subjectID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Service is the lifecycle coordinator.
type Service struct {
	metadata  MetadataStore
	blobs     BlobStore
	graph     GraphStore
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	// hasURIPredicate must match the graph gateway's so subjects are
	// checked the way the gateway will encode them.
	hasURIPredicate string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventPublisher sets where lifecycle events go. Without it events are dropped.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithHasURIPredicate sets the predicate of the synthetic subject triple.
func WithHasURIPredicate(predicate string) Option {
	return func(s *Service) {
		s.hasURIPredicate = predicate
	}
}

// New constructs a Service. All three stores are required.
func New(metadata MetadataStore, blobs BlobStore, graph GraphStore, opts ...Option) (*Service, error) {
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if graph == nil {
		return nil, errors.New("graph store is required")
	}
	s := &Service{metadata: metadata, blobs: blobs, graph: graph}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	return s, nil
}

// translate maps store errors onto domain codes. Errors that already carry a
// code pass through unchanged.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	if dErrors.Is(err) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, message)
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, message)
	case errors.Is(err, sentinel.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}

// publish is best effort: the change is already committed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish lifecycle event",
			"error", err,
			"event_type", string(e.Type),
			"sd_hash", e.Hash,
		)
		if s.metrics != nil {
			s.metrics.IncrementPublishFailures()
		}
	}
}

// finish records the outcome of an operation on its span and in metrics.
func (s *Service) finish(span trace.Span, operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
		if err != nil {
			s.metrics.IncrementFailure(operation, string(dErrors.CodeOf(err)))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s failed", operation))
	}
	span.End()
}
