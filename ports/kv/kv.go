// Package kv defines the key-value port used for mementos and other small
// blobs. Adapters (NATS JetStream KV in adapters/nats) implement Store;
// MemoryStore backs tests and single-process setups.
package kv

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ErrNotFound reports a key with no live entry.
var ErrNotFound = errors.New("not found")

var js = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one stored value. Revision is assigned by the store on write
// and grows monotonically; readers can compare revisions to detect change.
type Entry struct {
	Data     []byte
	Revision uint64
}

type PutOptions struct {
	// TTL expires the entry. Zero keeps it until deleted. Stores without
	// per-entry expiry may ignore it, see the adapter's documentation.
	TTL time.Duration
}

// Store is a string-keyed blob store.
type Store interface {
	Put(ctx context.Context, key string, e Entry, opts PutOptions) error
	Get(ctx context.Context, key string) (Entry, error)
	Delete(ctx context.Context, key string) error
}

// Put stores v JSON-encoded under key.
func Put[T any](ctx context.Context, s Store, key string, v T, opts PutOptions) error {
	data, err := js.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, Entry{Data: data}, opts)
}

// Get loads key and JSON-decodes it into T, ErrNotFound when the key does
// not exist.
func Get[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	entry, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := js.Unmarshal(entry.Data, &out); err != nil {
		return out, err
	}
	return out, nil
}
