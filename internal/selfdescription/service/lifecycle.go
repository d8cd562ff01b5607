package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/internal/selfdescription/events"
	"sdcatalog/internal/selfdescription/models"
	dErrors "sdcatalog/pkg/domain-errors"
	"sdcatalog/pkg/platform/sentinel"
	"sdcatalog/pkg/requestcontext"
)

// Store accepts a new version of a self-description. The current ACTIVE
// version of the same subject, if any, is deprecated and its claims are
// replaced by vr.Claims. The raw document is written after the metadata
// commit; a failure there leaves a row without a document, which GetByHash
// reports as an internal error.
func (s *Service) Store(ctx context.Context, sd *models.SelfDescription, vr *models.VerificationResult) (err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.Store")
	defer func(start time.Time) { s.finish(span, "store", start, err) }(time.Now())

	if vr == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "verification result is required")
	}
	if sd == nil || sd.Hash == "" || sd.SubjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "self-description hash and subject id are required")
	}
	span.SetAttributes(attribute.String("sd_hash", sd.Hash), attribute.String("subject_id", sd.SubjectID))

	// Reject bad claims before touching any store.
	if err := ntriples.Validate(vr.Claims); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid claims")
	}
	if err := ntriples.ValidateSubject(sd.SubjectID, s.hasURIPredicate); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid subject id")
	}

	now := requestcontext.Now(ctx)
	rec := sd.Record.Clone()
	rec.Status = models.StatusActive
	rec.StatusTime = now
	if rec.UploadTime.IsZero() {
		rec.UploadTime = now
	}
	if exp := vr.EarliestExpiration(); exp != nil {
		rec.ExpirationTime = exp
	}
	if len(rec.ValidatorDIDs) == 0 {
		rec.ValidatorDIDs = vr.ValidatorDIDs()
	}

	var superseded *models.Record
	err = s.metadata.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.metadata.FindActiveForUpdate(ctx, rec.SubjectID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			current = nil
		case err != nil:
			return err
		}
		if current != nil {
			if current.Hash == rec.Hash {
				return dErrors.New(dErrors.CodeConflict, "self-description with hash "+rec.Hash+" already exists")
			}
			if err := current.Transition(models.StatusDeprecated, now); err != nil {
				return err
			}
			if err := s.metadata.UpdateStatus(ctx, current.Hash, current.Status, current.StatusTime); err != nil {
				return err
			}
			superseded = current
		}
		if err := s.metadata.Insert(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "self-description "+rec.Hash+" conflicts with an existing record")
			}
			return err
		}
		// Claims are keyed by subject, so the old version's claims go first.
		if err := s.graph.DeleteClaims(ctx, rec.SubjectID); err != nil {
			return err
		}
		if err := s.graph.AddClaims(ctx, vr.Claims, rec.SubjectID); err != nil {
			if superseded != nil {
				s.logger.ErrorContext(ctx, "claims of the superseded version were removed before the new claims failed",
					"error", err,
					"subject_id", rec.SubjectID,
					"superseded_hash", superseded.Hash,
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return translate(err, "failed to store self-description")
	}

	if err := s.blobs.Store(ctx, rec.Hash, sd.Content); err != nil {
		s.logger.ErrorContext(ctx, "metadata committed but document was not stored",
			"error", err,
			"sd_hash", rec.Hash,
		)
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "document with hash "+rec.Hash+" already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	if s.metrics != nil {
		s.metrics.IncrementStored()
		if superseded != nil {
			s.metrics.IncrementTransition(string(models.StatusDeprecated))
		}
	}
	e := events.New(ctx, events.TypeStored, rec)
	if superseded != nil {
		e.Superseded = superseded.Hash
	}
	s.publish(ctx, e)
	s.logger.InfoContext(ctx, "self-description stored",
		"sd_hash", rec.Hash,
		"subject_id", rec.SubjectID,
		"claims", len(vr.Claims),
	)
	return nil
}

// ChangeLifecycleStatus moves an ACTIVE record to a terminal status and
// removes its claims from the graph. The record is looked up before the
// target is judged, so a missing record is NotFound and any change that is
// not ACTIVE to terminal, including a request for ACTIVE, is a Conflict.
func (s *Service) ChangeLifecycleStatus(ctx context.Context, hash string, target models.Status) (err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.ChangeLifecycleStatus")
	defer func(start time.Time) { s.finish(span, "change_status", start, err) }(time.Now())
	span.SetAttributes(attribute.String("sd_hash", hash), attribute.String("target_status", string(target)))

	if !target.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown status "+string(target))
	}
	return s.changeStatus(ctx, hash, target, events.TypeStatusChanged)
}

func (s *Service) changeStatus(ctx context.Context, hash string, target models.Status, eventType events.Type) error {
	now := requestcontext.Now(ctx)
	var changed *models.Record
	err := s.metadata.RunInTx(ctx, func(ctx context.Context) error {
		rec, err := s.metadata.FindByHashForUpdate(ctx, hash)
		if err != nil {
			return err
		}
		if !rec.IsActive() {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("can not change status of self-description %s, current status is %s", hash, rec.Status))
		}
		if !target.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("self-description %s is already %s", hash, rec.Status))
		}
		if err := rec.Transition(target, now); err != nil {
			return err
		}
		if err := s.metadata.UpdateStatus(ctx, rec.Hash, rec.Status, rec.StatusTime); err != nil {
			return err
		}
		if err := s.graph.DeleteClaims(ctx, rec.SubjectID); err != nil {
			return err
		}
		changed = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "self-description "+hash+" not found")
		}
		return translate(err, "failed to change status")
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(target))
	}
	s.publish(ctx, events.New(ctx, eventType, changed))
	s.logger.InfoContext(ctx, "self-description status changed",
		"sd_hash", hash,
		"status", string(target),
	)
	return nil
}

// Delete removes a record of any status together with its document, and its
// claims when it was ACTIVE. A missing document does not fail the call.
func (s *Service) Delete(ctx context.Context, hash string) (err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.Delete")
	defer func(start time.Time) { s.finish(span, "delete", start, err) }(time.Now())
	span.SetAttributes(attribute.String("sd_hash", hash))

	var deleted *models.Record
	err = s.metadata.RunInTx(ctx, func(ctx context.Context) error {
		rec, err := s.metadata.FindByHashForUpdate(ctx, hash)
		if err != nil {
			return err
		}
		if err := s.metadata.Delete(ctx, hash); err != nil {
			return err
		}
		if rec.IsActive() {
			if err := s.graph.DeleteClaims(ctx, rec.SubjectID); err != nil {
				return err
			}
		}
		deleted = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "self-description "+hash+" not found")
		}
		return translate(err, "failed to delete self-description")
	}

	if err := s.blobs.Delete(ctx, hash); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.InfoContext(ctx, "document already absent on delete", "sd_hash", hash)
		} else {
			s.logger.ErrorContext(ctx, "failed to delete document", "error", err, "sd_hash", hash)
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	s.publish(ctx, events.New(ctx, events.TypeDeleted, deleted))
	s.logger.InfoContext(ctx, "self-description deleted", "sd_hash", hash, "subject_id", deleted.SubjectID)
	return nil
}

// InvalidateExpired moves every ACTIVE record whose expiration time has passed
// to EOL, one transaction per record. Records another writer changed first are
// skipped. It returns the number of records examined; failures on single
// records are joined into the returned error without stopping the sweep.
func (s *Service) InvalidateExpired(ctx context.Context) (examined int, err error) {
	ctx, span := tracer.Start(ctx, "selfdescription.InvalidateExpired")
	start := time.Now()
	defer func() { s.finish(span, "invalidate_expired", start, err) }()

	now := requestcontext.Now(ctx)
	var (
		expired, raced int
		failures       []error
	)
	iterErr := s.metadata.ForEachExpired(ctx, now, func(ctx context.Context, hash string) error {
		examined++
		err := s.changeStatus(ctx, hash, models.StatusEOL, events.TypeExpired)
		switch {
		case err == nil:
			expired++
		case dErrors.HasCode(err, dErrors.CodeConflict), dErrors.HasCode(err, dErrors.CodeNotFound):
			raced++
			s.logger.InfoContext(ctx, "expired self-description changed concurrently, skipping",
				"sd_hash", hash,
				"reason", err.Error(),
			)
		default:
			failures = append(failures, fmt.Errorf("expire %s: %w", hash, err))
			s.logger.ErrorContext(ctx, "failed to expire self-description", "error", err, "sd_hash", hash)
		}
		return ctx.Err()
	})
	if iterErr != nil {
		failures = append(failures, iterErr)
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(examined, expired, raced, start)
	}
	span.SetAttributes(
		attribute.Int("examined", examined),
		attribute.Int("expired", expired),
		attribute.Int("raced", raced),
	)
	s.logger.InfoContext(ctx, "expiry sweep finished",
		"examined", examined,
		"expired", expired,
		"raced", raced,
		"failed", len(failures),
	)
	if len(failures) > 0 {
		return examined, dErrors.Wrap(errors.Join(failures...), dErrors.CodeInternal, "expiry sweep finished with errors")
	}
	return examined, nil
}
