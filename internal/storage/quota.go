package storage

import (
	"context"
	"sync"
)

// QuotaStore wraps a Store with a total-bytes budget, mirroring the size
// limits browsers impose on local storage. Writes that would push the total
// past the budget fail with ErrQuotaExceeded; the caller is expected to
// recover by clearing and retrying.
//
// Accounting is in-memory and starts from zero, so a restart resets the
// budget for whatever the backing store already holds.
type QuotaStore struct {
	inner    Store
	maxBytes int64

	mu    sync.Mutex
	sizes map[string]int64
	used  int64
}

var _ Store = (*QuotaStore)(nil)

func NewQuotaStore(inner Store, maxBytes int64) *QuotaStore {
	return &QuotaStore{
		inner:    inner,
		maxBytes: maxBytes,
		sizes:    make(map[string]int64),
	}
}

func (s *QuotaStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, key)
}

func (s *QuotaStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	newUsed := s.used - s.sizes[key] + int64(len(value))
	if s.maxBytes > 0 && newUsed > s.maxBytes {
		s.mu.Unlock()
		return ErrQuotaExceeded
	}
	s.mu.Unlock()

	if err := s.inner.Put(ctx, key, value); err != nil {
		return err
	}

	s.mu.Lock()
	s.used = s.used - s.sizes[key] + int64(len(value))
	s.sizes[key] = int64(len(value))
	s.mu.Unlock()
	return nil
}

func (s *QuotaStore) Delete(ctx context.Context, key string) error {
	if err := s.inner.Delete(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	s.used -= s.sizes[key]
	delete(s.sizes, key)
	s.mu.Unlock()
	return nil
}

func (s *QuotaStore) Clear(ctx context.Context) error {
	if err := s.inner.Clear(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.sizes = make(map[string]int64)
	s.used = 0
	s.mu.Unlock()
	return nil
}
