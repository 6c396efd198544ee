package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/localworks/localworks-api/internal/ports/out/idempotency"
)

var (
	_ idempotency.Store  = (*Store)(nil)
	_ idempotency.Purger = (*Store)(nil)
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[idempotency.Fingerprint]idempotency.Record

	// Retention bounds how long a record can be replayed; zero keeps records forever.
	Retention time.Duration
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		m:   make(map[idempotency.Fingerprint]idempotency.Record),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	rec, ok := s.m[fp]
	s.mu.RUnlock()
	if !ok {
		return idempotency.Record{}, false, nil
	}
	if s.expired(rec) {
		s.evictExpired(fp)
		return idempotency.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// evictExpired deletes fp only if the record stored now is still expired.
// A Put can land between Get's read and write locks.
func (s *Store) evictExpired(fp idempotency.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.m[fp]; ok && s.expired(rec) {
		delete(s.m, fp)
		return true
	}
	return false
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[fp] = cloneRecord(rec)
	return nil
}

// Purge removes expired records and returns how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	_ = ctx
	if s.Retention <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for fp, rec := range s.m {
		if s.expired(rec) {
			delete(s.m, fp)
			n++
		}
	}
	return n, nil
}

func (s *Store) expired(rec idempotency.Record) bool {
	return s.Retention > 0 && s.now().Sub(rec.CreatedAt) > s.Retention
}

func cloneRecord(rec idempotency.Record) idempotency.Record {
	out := rec
	out.Body = append([]byte(nil), rec.Body...)
	return out
}
