package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/GeorGeWzw/aggregates-go/ports/kv"
)

// KVSnapshotStore persists mementos in any kv.Store, one key per stream.
// Backed by kv.MemoryStore it is a test double; backed by the NATS adapter it
// survives restarts.
type KVSnapshotStore struct {
	store kv.Store
}

var _ SnapshotStore = (*KVSnapshotStore)(nil)

func NewKVSnapshotStore(store kv.Store) *KVSnapshotStore {
	return &KVSnapshotStore{store: store}
}

func (s *KVSnapshotStore) key(sid StreamID) string { return "memento." + sid.Key() }

func (s *KVSnapshotStore) SaveSnapshot(ctx context.Context, m *Memento) error {
	if err := m.Stream.Validate(); err != nil {
		return err
	}
	if err := kv.Put(ctx, s.store, s.key(m.Stream), m, kv.PutOptions{}); err != nil {
		return fmt.Errorf("save memento %s: %w", m.Stream.Key(), err)
	}
	return nil
}

func (s *KVSnapshotStore) LoadSnapshot(ctx context.Context, sid StreamID) (*Memento, error) {
	m, err := kv.Get[Memento](ctx, s.store, s.key(sid))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMementoNotFound, sid.Key())
		}
		return nil, fmt.Errorf("load memento %s: %w", sid.Key(), err)
	}
	return &m, nil
}
