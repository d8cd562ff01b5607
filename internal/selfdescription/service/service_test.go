package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/internal/selfdescription/events"
	"sdcatalog/internal/selfdescription/models"
	"sdcatalog/internal/selfdescription/service/mocks"
	"sdcatalog/internal/selfdescription/store/metadata"
	dErrors "sdcatalog/pkg/domain-errors"
	"sdcatalog/pkg/platform/sentinel"
	"sdcatalog/pkg/requestcontext"
)

// =============================================================================
// Lifecycle Coordinator Test Suite
// =============================================================================
// The metadata store is the in-memory implementation so transactions, row
// visibility and rollbacks behave like the real thing; blob, graph and event
// ports are mocked to assert exactly which side effects each operation has.

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	metadata  *metadata.InMemoryStore
	blobs     *mocks.MockBlobStore
	graph     *mocks.MockGraphStore
	publisher *mocks.MockEventPublisher
	service   *Service
	now       time.Time
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.metadata = metadata.NewInMemory(time.Second)
	s.blobs = mocks.NewMockBlobStore(s.ctrl)
	s.graph = mocks.NewMockGraphStore(s.ctrl)
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(s.metadata, s.blobs, s.graph,
		WithLogger(logger),
		WithEventPublisher(s.publisher),
	)
	s.Require().NoError(err)
	s.service = svc

	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

var (
	_ EventPublisher = events.NopPublisher{}
	_ EventPublisher = (*events.KafkaPublisher)(nil)
)

const subject = "http://example.org/participant/1"

func claimsFor(subjectID string) []ntriples.Claim {
	return []ntriples.Claim{
		{Subject: "<" + subjectID + ">", Predicate: "<http://www.w3.org/1999/02/22-rdf-syntax-ns#type>", Object: "<http://w3id.org/gaia-x/participant#LegalPerson>"},
		{Subject: "<" + subjectID + ">", Predicate: "<http://w3id.org/gaia-x/participant#name>", Object: `"Provider"`},
	}
}

func newSD(hash, subjectID string) *models.SelfDescription {
	return &models.SelfDescription{
		Record:  models.Record{Hash: hash, SubjectID: subjectID, Issuer: "did:web:issuer"},
		Content: []byte(`{"id":"` + hash + `"}`),
	}
}

func (s *ServiceSuite) verification(subjectID string) *models.VerificationResult {
	return &models.VerificationResult{
		Claims: claimsFor(subjectID),
		Validators: []models.Validator{
			{DID: "did:web:v1", ExpirationDate: s.now.Add(72 * time.Hour)},
			{DID: "did:web:v2", ExpirationDate: s.now.Add(24 * time.Hour)},
		},
	}
}

// expectStoreEffects sets up the graph, blob and event calls of one successful store.
func (s *ServiceSuite) expectStoreEffects(sd *models.SelfDescription) {
	s.graph.EXPECT().DeleteClaims(gomock.Any(), sd.SubjectID).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), sd.SubjectID).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), sd.Hash, sd.Content).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *ServiceSuite) mustStore(hash, subjectID string) {
	sd := newSD(hash, subjectID)
	s.expectStoreEffects(sd)
	s.Require().NoError(s.service.Store(s.ctx, sd, s.verification(subjectID)))
}

func (s *ServiceSuite) record(hash string) *models.Record {
	r, err := s.metadata.FindByHash(context.Background(), hash)
	s.Require().NoError(err)
	return r
}

// =============================================================================
// Constructor
// =============================================================================

func (s *ServiceSuite) TestNewRequiresStores() {
	_, err := New(nil, s.blobs, s.graph)
	s.Error(err)
	_, err = New(s.metadata, nil, s.graph)
	s.Error(err)
	_, err = New(s.metadata, s.blobs, nil)
	s.Error(err)
}

// =============================================================================
// Store
// =============================================================================

func (s *ServiceSuite) TestStoreRequiresVerificationResult() {
	err := s.service.Store(s.ctx, newSD("h1", subject), nil)

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Empty(s.metadata.Snapshot())
}

func (s *ServiceSuite) TestStoreRejectsInvalidClaimsBeforeAnyMutation() {
	vr := s.verification(subject)
	vr.Claims = append(vr.Claims, ntriples.Claim{
		Subject:   "<" + subject + ">",
		Predicate: "<http://ex.com/some_property>",
		Object:    "_:23",
	})

	err := s.service.Store(s.ctx, newSD("h1", subject), vr)

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "Object in triple")
	s.Empty(s.metadata.Snapshot())
}

func (s *ServiceSuite) TestStoreRejectsRelativeSubjectBeforeAnyMutation() {
	// no graph expectations: DeleteClaims must not run
	err := s.service.Store(s.ctx, newSD("h1", "participant-1"), s.verification(subject))

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "invalid subject id")
	s.Contains(err.Error(), "Subject in triple")
	s.Empty(s.metadata.Snapshot())
}

func (s *ServiceSuite) TestStoreRejectsSubjectAgainstConfiguredPredicate() {
	svc, err := New(s.metadata, s.blobs, s.graph,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHasURIPredicate("hasURI"),
	)
	s.Require().NoError(err)

	err = svc.Store(s.ctx, newSD("h1", subject), s.verification(subject))

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "invalid subject id")
	s.Contains(err.Error(), "Predicate in triple")
	s.Empty(s.metadata.Snapshot())
}

func (s *ServiceSuite) TestStoreFirstVersion() {
	sd := newSD("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), claimsFor(subject), subject).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), "h1", sd.Content).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(events.TypeStored, e.Type)
			s.Equal("h1", e.Hash)
			s.Empty(e.Superseded)
			return nil
		})

	s.Require().NoError(s.service.Store(s.ctx, sd, s.verification(subject)))

	r := s.record("h1")
	s.Equal(models.StatusActive, r.Status)
	s.Equal(s.now, r.StatusTime)
	s.Equal(s.now, r.UploadTime)
	s.Require().NotNil(r.ExpirationTime)
	s.Equal(s.now.Add(24*time.Hour), *r.ExpirationTime, "earliest validator expiration wins")
	s.Equal([]string{"did:web:v1", "did:web:v2"}, r.ValidatorDIDs)
}

func (s *ServiceSuite) TestStoreKeepsCallerValidators() {
	sd := newSD("h1", subject)
	sd.ValidatorDIDs = []string{"did:web:own"}
	s.expectStoreEffects(sd)

	s.Require().NoError(s.service.Store(s.ctx, sd, s.verification(subject)))

	s.Equal([]string{"did:web:own"}, s.record("h1").ValidatorDIDs)
}

func (s *ServiceSuite) TestStoreSupersedesActiveVersion() {
	s.mustStore("h1", subject)

	later := s.now.Add(time.Hour)
	ctx := requestcontext.WithTime(context.Background(), later)
	sd := newSD("h2", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), "h2", sd.Content).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal("h1", e.Superseded)
			return nil
		})

	s.Require().NoError(s.service.Store(ctx, sd, s.verification(subject)))

	old := s.record("h1")
	s.Equal(models.StatusDeprecated, old.Status)
	s.Equal(later, old.StatusTime)
	s.Equal(models.StatusActive, s.record("h2").Status)
}

func (s *ServiceSuite) TestStoreDuplicateHashConflicts() {
	s.mustStore("h1", subject)

	err := s.service.Store(s.ctx, newSD("h1", subject), s.verification(subject))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	err = s.service.Store(s.ctx, newSD("h1", "http://example.org/other"), s.verification("http://example.org/other"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StatusActive, s.record("h1").Status)
}

func (s *ServiceSuite) TestStoreGraphFailureRollsBackMetadata() {
	s.mustStore("h1", subject)

	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).
		Return(dErrors.New(dErrors.CodeInternal, "failed to import claims"))

	err := s.service.Store(s.ctx, newSD("h2", subject), s.verification(subject))

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(models.StatusActive, s.record("h1").Status)
	_, err = s.metadata.FindByHash(context.Background(), "h2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestStoreExistingBlobConflictsAfterCommit() {
	sd := newSD("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), "h1", gomock.Any()).Return(fmt.Errorf("store blob: %w", sentinel.ErrAlreadyExists))

	err := s.service.Store(s.ctx, sd, s.verification(subject))

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StatusActive, s.record("h1").Status, "metadata stays committed")
}

func (s *ServiceSuite) TestStoreBlobIOFailureIsInternal() {
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), "h1", gomock.Any()).Return(errors.New("connection reset"))

	err := s.service.Store(s.ctx, newSD("h1", subject), s.verification(subject))

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestStoreIgnoresPublishFailure() {
	sd := newSD("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Store(gomock.Any(), "h1", gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	s.NoError(s.service.Store(s.ctx, sd, s.verification(subject)))
}

// =============================================================================
// ChangeLifecycleStatus
// =============================================================================

func (s *ServiceSuite) TestChangeStatusRejectsUnknownTarget() {
	s.mustStore("h1", subject)

	err := s.service.ChangeLifecycleStatus(s.ctx, "h1", models.Status("ARCHIVED"))

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(models.StatusActive, s.record("h1").Status)
}

func (s *ServiceSuite) TestChangeStatusToActiveConflicts() {
	s.mustStore("h1", subject)

	err := s.service.ChangeLifecycleStatus(s.ctx, "h1", models.StatusActive)

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StatusActive, s.record("h1").Status)
}

func (s *ServiceSuite) TestReactivatingTerminalRecordConflicts() {
	s.mustStore("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.service.ChangeLifecycleStatus(s.ctx, "h1", models.StatusRevoked))

	err := s.service.ChangeLifecycleStatus(s.ctx, "h1", models.StatusActive)

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StatusRevoked, s.record("h1").Status)
}

func (s *ServiceSuite) TestReactivatingMissingRecordIsNotFound() {
	err := s.service.ChangeLifecycleStatus(s.ctx, "missing", models.StatusActive)

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestChangeStatusMissingRecord() {
	err := s.service.ChangeLifecycleStatus(s.ctx, "nope", models.StatusRevoked)

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRevokeRemovesClaims() {
	s.mustStore("h1", subject)
	later := s.now.Add(time.Minute)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(events.TypeStatusChanged, e.Type)
			s.Equal(models.StatusRevoked, e.Status)
			return nil
		})

	err := s.service.ChangeLifecycleStatus(requestcontext.WithTime(context.Background(), later), "h1", models.StatusRevoked)

	s.Require().NoError(err)
	r := s.record("h1")
	s.Equal(models.StatusRevoked, r.Status)
	s.Equal(later, r.StatusTime)
}

func (s *ServiceSuite) TestTerminalStatusNeverChanges() {
	s.mustStore("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.service.ChangeLifecycleStatus(s.ctx, "h1", models.StatusRevoked))

	for _, target := range []models.Status{models.StatusDeprecated, models.StatusRevoked, models.StatusEOL} {
		err := s.service.ChangeLifecycleStatus(s.ctx, "h1", target)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), target)
	}
	s.Equal(models.StatusRevoked, s.record("h1").Status)
}

func (s *ServiceSuite) TestChangeStatusGraphFailureKeepsRecordActive() {
	s.mustStore("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(errors.New("neo4j unavailable"))

	err := s.service.ChangeLifecycleStatus(s.ctx, "h1", models.StatusRevoked)

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(models.StatusActive, s.record("h1").Status)
}

// =============================================================================
// Delete
// =============================================================================

func (s *ServiceSuite) TestDeleteActiveRemovesEverything() {
	s.mustStore("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Delete(gomock.Any(), "h1").Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(s.service.Delete(s.ctx, "h1"))

	s.Empty(s.metadata.Snapshot())
}

func (s *ServiceSuite) TestDeleteInactiveLeavesGraphAlone() {
	s.mustStore("h1", subject)
	s.mustStore("h2", subject)
	// no DeleteClaims expectation: h1 is DEPRECATED
	s.blobs.EXPECT().Delete(gomock.Any(), "h1").Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(s.service.Delete(s.ctx, "h1"))

	s.Len(s.metadata.Snapshot(), 1)
}

func (s *ServiceSuite) TestDeleteToleratesMissingBlob() {
	s.mustStore("h1", subject)
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil)
	s.blobs.EXPECT().Delete(gomock.Any(), "h1").Return(fmt.Errorf("delete blob: %w", sentinel.ErrNotFound))
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	s.NoError(s.service.Delete(s.ctx, "h1"))
}

func (s *ServiceSuite) TestDeleteMissingRecord() {
	err := s.service.Delete(s.ctx, "nope")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// InvalidateExpired
// =============================================================================

// seed inserts an ACTIVE record directly, bypassing Store.
func (s *ServiceSuite) seed(hash, subjectID string, expiration time.Time) {
	exp := expiration
	s.Require().NoError(s.metadata.Insert(context.Background(), &models.Record{
		Hash:           hash,
		SubjectID:      subjectID,
		UploadTime:     s.now.Add(-48 * time.Hour),
		Status:         models.StatusActive,
		StatusTime:     s.now.Add(-48 * time.Hour),
		ExpirationTime: &exp,
	}))
}

func (s *ServiceSuite) TestSweepExpiresOnlyExpiredRecords() {
	for i := 0; i < 3; i++ {
		s.seed(fmt.Sprintf("expired-%d", i), fmt.Sprintf("http://example.org/e%d", i), s.now.Add(-time.Hour))
	}
	for i := 0; i < 2; i++ {
		s.seed(fmt.Sprintf("fresh-%d", i), fmt.Sprintf("http://example.org/f%d", i), s.now.Add(time.Hour))
	}
	s.graph.EXPECT().DeleteClaims(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(events.TypeExpired, e.Type)
			return nil
		}).Times(3)

	n, err := s.service.InvalidateExpired(s.ctx)

	s.Require().NoError(err)
	s.Equal(3, n)
	for hash, r := range s.metadata.Snapshot() {
		if r.ExpirationTime.Before(s.now) {
			s.Equal(models.StatusEOL, r.Status, hash)
			s.Equal(s.now, r.StatusTime, hash)
		} else {
			s.Equal(models.StatusActive, r.Status, hash)
		}
	}
}

func (s *ServiceSuite) TestSweepSkipsConcurrentlyRevokedRecord() {
	s.seed("a", "http://example.org/a", s.now.Add(-time.Hour))
	s.seed("b", "http://example.org/b", s.now.Add(-2*time.Hour))

	racing := &racingStore{InMemoryStore: s.metadata, before: map[string]func(){}}
	svc, err := New(racing, s.blobs, s.graph, WithEventPublisher(s.publisher),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	racing.before["a"] = func() {
		s.Require().NoError(svc.ChangeLifecycleStatus(s.ctx, "a", models.StatusRevoked))
	}
	s.graph.EXPECT().DeleteClaims(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	n, err := svc.InvalidateExpired(s.ctx)

	s.Require().NoError(err)
	s.Equal(2, n, "raced records still count as examined")
	s.Equal(models.StatusRevoked, s.record("a").Status)
	s.Equal(models.StatusEOL, s.record("b").Status)
}

func (s *ServiceSuite) TestSweepContinuesPastFailures() {
	s.seed("a", "http://example.org/a", s.now.Add(-2*time.Hour))
	s.seed("b", "http://example.org/b", s.now.Add(-time.Hour))
	s.graph.EXPECT().DeleteClaims(gomock.Any(), "http://example.org/a").Return(errors.New("neo4j unavailable"))
	s.graph.EXPECT().DeleteClaims(gomock.Any(), "http://example.org/b").Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	n, err := s.service.InvalidateExpired(s.ctx)

	s.Equal(2, n)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Contains(err.Error(), "expire a")
	s.Equal(models.StatusActive, s.record("a").Status)
	s.Equal(models.StatusEOL, s.record("b").Status)
}

func (s *ServiceSuite) TestSweepWithNothingExpired() {
	s.seed("a", "http://example.org/a", s.now.Add(time.Hour))

	n, err := s.service.InvalidateExpired(s.ctx)

	s.NoError(err)
	s.Zero(n)
}

// racingStore runs a hook right before the sweep handles a hash, standing in
// for a writer that gets there first.
type racingStore struct {
	*metadata.InMemoryStore
	before map[string]func()
}

func (r *racingStore) ForEachExpired(ctx context.Context, now time.Time, fn func(ctx context.Context, hash string) error) error {
	return r.InMemoryStore.ForEachExpired(ctx, now, func(ctx context.Context, hash string) error {
		if hook, ok := r.before[hash]; ok {
			hook()
		}
		return fn(ctx, hash)
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *ServiceSuite) TestGetByHash() {
	s.mustStore("h1", subject)
	s.blobs.EXPECT().Read(gomock.Any(), "h1").Return([]byte("doc"), nil)

	sd, err := s.service.GetByHash(s.ctx, "h1")

	s.Require().NoError(err)
	s.Equal("doc", string(sd.Content))
	s.Equal(subject, sd.SubjectID)
}

func (s *ServiceSuite) TestGetByHashMissingRecord() {
	_, err := s.service.GetByHash(s.ctx, "nope")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetByHashMissingDocumentIsInternal() {
	s.mustStore("h1", subject)
	s.blobs.EXPECT().Read(gomock.Any(), "h1").Return(nil, fmt.Errorf("read blob: %w", sentinel.ErrNotFound))

	_, err := s.service.GetByHash(s.ctx, "h1")

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestGetContent() {
	s.blobs.EXPECT().Read(gomock.Any(), "h1").Return(nil, fmt.Errorf("read blob: %w", sentinel.ErrNotFound))

	_, err := s.service.GetContent(s.ctx, "h1")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetByFilterPaging() {
	for i := 0; i < 5; i++ {
		s.seed(fmt.Sprintf("h%d", i), fmt.Sprintf("http://example.org/s%d", i), s.now.Add(time.Hour))
	}

	all, err := s.service.GetByFilter(s.ctx, models.Filter{})
	s.Require().NoError(err)
	s.Equal(5, all.TotalCount)
	s.Len(all.Records, 5, "limit 0 returns everything")

	first, err := s.service.GetByFilter(s.ctx, models.Filter{Offset: 1, Limit: 2})
	s.Require().NoError(err)
	again, err := s.service.GetByFilter(s.ctx, models.Filter{Offset: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, first.TotalCount)
	s.Equal(first, again)
	s.Equal("h1", first.Records[0].Hash)

	empty, err := s.service.GetByFilter(s.ctx, models.Filter{Offset: 50})
	s.Require().NoError(err)
	s.NotNil(empty.Records)
	s.Empty(empty.Records)
}

func (s *ServiceSuite) TestGetByFilterRejectsNegativePaging() {
	_, err := s.service.GetByFilter(s.ctx, models.Filter{Limit: -1})

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *ServiceSuite) TestConcurrentStoresKeepOneActivePerSubject() {
	const writers = 16
	s.graph.EXPECT().DeleteClaims(gomock.Any(), subject).Return(nil).AnyTimes()
	s.graph.EXPECT().AddClaims(gomock.Any(), gomock.Any(), subject).Return(nil).AnyTimes()
	s.blobs.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.service.Store(s.ctx, newSD(fmt.Sprintf("h%02d", i), subject), s.verification(subject))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			s.True(dErrors.HasCode(err, dErrors.CodeTimeout) || dErrors.HasCode(err, dErrors.CodeConflict), err.Error())
		}
	}
	active := 0
	for _, r := range s.metadata.Snapshot() {
		if r.IsActive() {
			active++
		}
	}
	s.Equal(1, active)
}
