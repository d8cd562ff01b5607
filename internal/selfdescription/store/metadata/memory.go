package metadata

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"sdcatalog/internal/selfdescription/models"
	"sdcatalog/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map. Transactions are serialized by a
// single lock acquired with a bounded wait; writes are staged on a copy and
// published on commit, so a failed transaction leaves no trace.
type InMemoryStore struct {
	sem      chan struct{}
	mu       sync.RWMutex
	records  map[string]*models.Record
	lockWait time.Duration
}

type memTxKey struct{}

type memTx struct {
	records map[string]*models.Record
}

// NewInMemory builds an empty store. lockWait bounds how long RunInTx waits
// for a concurrent transaction to finish.
func NewInMemory(lockWait time.Duration) *InMemoryStore {
	return &InMemoryStore{
		sem:      make(chan struct{}, 1),
		records:  make(map[string]*models.Record),
		lockWait: lockWait,
	}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-s.sem }()

	s.mu.RLock()
	staged := make(map[string]*models.Record, len(s.records))
	for k, r := range s.records {
		staged[k] = r.Clone()
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, &memTx{records: staged})); err != nil {
		return err
	}

	s.mu.Lock()
	s.records = staged
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if s.lockWait > 0 {
		timer := time.NewTimer(s.lockWait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-timeout:
		return sentinel.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// write runs fn against the staged records of the current or a new transaction.
func (s *InMemoryStore) write(ctx context.Context, fn func(records map[string]*models.Record) error) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(memTxKey{}).(*memTx).records)
	})
}

// read runs fn against the staged records when ctx carries a transaction and
// the committed records otherwise.
func (s *InMemoryStore) read(ctx context.Context, fn func(records map[string]*models.Record)) {
	if t, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		fn(t.records)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.records)
}

func (s *InMemoryStore) FindActiveForUpdate(ctx context.Context, subjectID string) (*models.Record, error) {
	var found *models.Record
	s.read(ctx, func(records map[string]*models.Record) {
		for _, r := range records {
			if r.SubjectID == subjectID && r.IsActive() {
				found = r.Clone()
				return
			}
		}
	})
	if found == nil {
		return nil, fmt.Errorf("find active record: %w", sentinel.ErrNotFound)
	}
	return found, nil
}

// FindByHashForUpdate is FindByHash; RunInTx already holds the store lock.
func (s *InMemoryStore) FindByHashForUpdate(ctx context.Context, hash string) (*models.Record, error) {
	return s.FindByHash(ctx, hash)
}

func (s *InMemoryStore) FindByHash(ctx context.Context, hash string) (*models.Record, error) {
	var found *models.Record
	s.read(ctx, func(records map[string]*models.Record) {
		found = records[hash].Clone()
	})
	if found == nil {
		return nil, fmt.Errorf("find record: %w", sentinel.ErrNotFound)
	}
	return found, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	return s.write(ctx, func(records map[string]*models.Record) error {
		if _, ok := records[r.Hash]; ok {
			return fmt.Errorf("insert record %s: %w", r.Hash, sentinel.ErrConflict)
		}
		if r.IsActive() {
			for _, existing := range records {
				if existing.SubjectID == r.SubjectID && existing.IsActive() {
					return fmt.Errorf("second active record for %s: %w", r.SubjectID, sentinel.ErrConflict)
				}
			}
		}
		records[r.Hash] = r.Clone()
		return nil
	})
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, hash string, status models.Status, at time.Time) error {
	return s.write(ctx, func(records map[string]*models.Record) error {
		r, ok := records[hash]
		if !ok {
			return fmt.Errorf("update status: %w", sentinel.ErrNotFound)
		}
		r.Status = status
		r.StatusTime = at
		return nil
	})
}

func (s *InMemoryStore) Delete(ctx context.Context, hash string) error {
	return s.write(ctx, func(records map[string]*models.Record) error {
		if _, ok := records[hash]; !ok {
			return fmt.Errorf("delete record: %w", sentinel.ErrNotFound)
		}
		delete(records, hash)
		return nil
	})
}

func (s *InMemoryStore) Count(ctx context.Context, f models.Filter) (int, error) {
	return len(s.matching(ctx, f)), nil
}

func (s *InMemoryStore) List(ctx context.Context, f models.Filter) ([]*models.Record, error) {
	matched := s.matching(ctx, f)
	slices.SortFunc(matched, func(a, b *models.Record) int {
		if c := b.StatusTime.Compare(a.StatusTime); c != 0 {
			return c
		}
		return strings.Compare(a.Hash, b.Hash)
	})
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit != 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) matching(ctx context.Context, f models.Filter) []*models.Record {
	ps := predicatesFor(f)
	var out []*models.Record
	s.read(ctx, func(records map[string]*models.Record) {
		for _, r := range records {
			if matchesAll(ps, r) {
				out = append(out, r.Clone())
			}
		}
	})
	return out
}

// ForEachExpired snapshots the expired hashes, then calls fn without holding
// any lock.
func (s *InMemoryStore) ForEachExpired(ctx context.Context, now time.Time, fn func(ctx context.Context, hash string) error) error {
	var expired []*models.Record
	s.mu.RLock()
	for _, r := range s.records {
		if r.IsExpired(now) {
			expired = append(expired, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(expired, func(a, b *models.Record) int {
		if c := a.ExpirationTime.Compare(*b.ExpirationTime); c != 0 {
			return c
		}
		return strings.Compare(a.Hash, b.Hash)
	})
	for _, r := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, r.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

// Snapshot returns a copy of every committed record, keyed by hash.
func (s *InMemoryStore) Snapshot() map[string]*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := maps.Clone(s.records)
	for k, r := range out {
		out[k] = r.Clone()
	}
	return out
}
