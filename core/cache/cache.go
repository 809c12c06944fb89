package cache

import "time"

// PutOptions carries per-entry settings. The zero value inherits the
// cache's defaults.
type PutOptions struct {
	// TTL bounds how long the entry stays valid. Zero means the
	// cache's default TTL.
	TTL time.Duration
}

type PutOption func(*PutOptions)

func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) { o.TTL = ttl }
}

// Cache stores values under string keys. Implementations decide eviction;
// callers must tolerate any entry disappearing between Put and Get.
type Cache interface {
	Put(key string, value any, opts ...PutOption)
	Get(key string) (any, bool)
	Delete(key string)
}

// TypedCache narrows an untyped Cache to one value type. An entry of a
// different type under the same key reads as missing.
type TypedCache[T any] struct {
	inner Cache
}

func NewTyped[T any](c Cache) TypedCache[T] { return TypedCache[T]{inner: c} }

func (t TypedCache[T]) Get(key string) (T, bool) {
	v, ok := t.inner.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

func (t TypedCache[T]) Put(key string, val T, opts ...PutOption) {
	t.inner.Put(key, val, opts...)
}

func (t TypedCache[T]) Delete(key string) {
	t.inner.Delete(key)
}
