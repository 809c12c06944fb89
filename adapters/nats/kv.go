package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GeorGeWzw/aggregates-go/ports/kv"
)

type KVConfig struct {
	// Connect opens the NATS connection, ConnectDefault when nil.
	Connect Connector
	// Bucket names the JetStream key-value bucket. Required.
	Bucket string
	// TTL expires bucket entries; JetStream KV has no per-entry TTL, so
	// kv.PutOptions.TTL is ignored and this bucket-wide TTL governs expiry.
	TTL time.Duration
	// MaxBytes caps the bucket, 64 MiB by default.
	MaxBytes int64
}

func (c KVConfig) withDefaults() KVConfig {
	if c.Connect == nil {
		c.Connect = ConnectDefault()
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 64 << 20
	}
	return c
}

// KVStore implements kv.Store on a JetStream key-value bucket. Values are
// stored raw; kv.Entry.Revision carries the bucket revision of the key.
type KVStore struct {
	kv      jetstream.KeyValue
	release func()
}

var _ kv.Store = (*KVStore)(nil)

func NewKVStore(cfg KVConfig) (*KVStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("kv store needs a bucket name")
	}
	cfg = cfg.withDefaults()

	nc, release, err := cfg.Connect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		release()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  jetstream.FileStorage,
		TTL:      cfg.TTL,
		MaxBytes: cfg.MaxBytes,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("ensure kv bucket %s: %w", cfg.Bucket, err)
	}

	return &KVStore{kv: bucket, release: release}, nil
}

func (s *KVStore) Close() error {
	s.release()
	return nil
}

func (s *KVStore) Put(ctx context.Context, key string, entry kv.Entry, _ kv.PutOptions) error {
	if _, err := s.kv.Put(ctx, key, entry.Data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, fmt.Errorf("%w: %s", kv.ErrNotFound, key)
		}
		return kv.Entry{}, fmt.Errorf("kv get %s: %w", key, err)
	}
	return kv.Entry{Data: v.Value(), Revision: v.Revision()}, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
