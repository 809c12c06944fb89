package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Revisions count writes across the whole
// store, mirroring how the JetStream adapter numbers them.
type MemoryStore struct {
	mu   sync.RWMutex
	rev  uint64
	data map[string]memEntry
}

type memEntry struct {
	data      []byte
	revision  uint64
	expiresAt time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]memEntry{}}
}

func (s *MemoryStore) Put(_ context.Context, key string, entry Entry, opts PutOptions) error {
	var expiresAt time.Time
	if opts.TTL > 0 {
		expiresAt = time.Now().Add(opts.TTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.data[key] = memEntry{data: entry.Data, revision: s.rev, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		// only reap the revision we saw; the key may have been rewritten
		if cur, ok := s.data[key]; ok && cur.revision == e.revision {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return Entry{}, ErrNotFound
	}
	return Entry{Data: e.data, Revision: e.revision}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
