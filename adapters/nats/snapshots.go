package nats

import "github.com/GeorGeWzw/aggregates-go/core/aggregate"

// NewSnapshotStore returns a memento store persisted in a JetStream
// key-value bucket.
func NewSnapshotStore(cfg KVConfig) (*aggregate.KVSnapshotStore, error) {
	store, err := NewKVStore(cfg)
	if err != nil {
		return nil, err
	}
	return aggregate.NewKVSnapshotStore(store), nil
}
