package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sdcatalog/internal/selfdescription/models"
	dErrors "sdcatalog/pkg/domain-errors"
	"sdcatalog/pkg/platform/sentinel"
)

// GetByHash returns a record joined with its document. A record whose
// document is missing is an internal error, never "not found".
func (s *Service) GetByHash(ctx context.Context, hash string) (sd *models.SelfDescription, err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.GetByHash")
	defer func(start time.Time) { s.finish(span, "get_by_hash", start, err) }(time.Now())
	span.SetAttributes(attribute.String("sd_hash", hash))

	rec, err := s.metadata.FindByHash(ctx, hash)
	if err != nil {
		return nil, translate(err, "self-description "+hash+" not found")
	}
	content, err := s.blobs.Read(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "metadata present but document missing", "sd_hash", hash)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "document for self-description "+hash+" is missing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read document")
	}
	return &models.SelfDescription{Record: *rec, Content: content}, nil
}

// GetContent returns only the raw document stored under hash.
func (s *Service) GetContent(ctx context.Context, hash string) ([]byte, error) {
	content, err := s.blobs.Read(ctx, hash)
	if err != nil {
		return nil, translate(err, "document "+hash+" not found")
	}
	return content, nil
}

// GetByFilter returns the total number of matching records and one page of
// them, newest status change first. Total and page come from two queries and
// may disagree if a write lands in between.
func (s *Service) GetByFilter(ctx context.Context, f models.Filter) (page *models.Page, err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.GetByFilter")
	defer func(start time.Time) { s.finish(span, "get_by_filter", start, err) }(time.Now())

	if err := f.Validate(); err != nil {
		return nil, err
	}
	total, err := s.metadata.Count(ctx, f)
	if err != nil {
		return nil, translate(err, "failed to count self-descriptions")
	}
	records, err := s.metadata.List(ctx, f)
	if err != nil {
		return nil, translate(err, "failed to list self-descriptions")
	}
	if records == nil {
		records = []*models.Record{}
	}
	span.SetAttributes(attribute.Int("total", total), attribute.Int("returned", len(records)))
	return &models.Page{TotalCount: total, Records: records}, nil
}
