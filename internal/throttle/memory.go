package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/InboxGo/internal/domain"
)

// sweepEvery controls how often Update drops stale records.
const sweepEvery = 256

// MemoryStore keeps records in process. Records untouched for longer than
// retention are discarded.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]domain.LoginAttempt
	retention time.Duration
	now       func() time.Time
	updates   int
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]domain.LoginAttempt),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *domain.LoginAttempt
	if rec, ok := s.records[key]; ok {
		cur = &rec
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		delete(s.records, key)
	} else {
		s.records[key] = *next
	}

	s.updates++
	if s.updates%sweepEvery == 0 {
		s.sweep()
	}
	return nil
}

// Len returns the number of tracked sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) sweep() {
	if s.retention <= 0 {
		return
	}
	now := s.now()
	for key, rec := range s.records {
		if rec.LockedAt(now) {
			continue
		}
		if now.Sub(rec.LastAttemptAt) > s.retention {
			delete(s.records, key)
		}
	}
}
