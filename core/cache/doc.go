// Package cache holds the small cache surface the repository keeps hot
// mementos in: an untyped [Cache] interface, a [TypedCache] wrapper, an
// [LRU] implementation and a [Nop] for switching caching off.
//
// [LRU] serializes all operations through one goroutine, so it needs no
// external locking:
//
//	c := cache.NewLRU(cache.LRUOpts{Size: 1000, DefaultTTL: 5 * time.Minute})
//	defer c.Close()
//
//	c.Put("order.order-123", m)
//	if v, ok := c.Get("order.order-123"); ok {
//	    m := v.(*aggregate.Memento)
//	    ...
//	}
//
// [NewTyped] moves the type assertion behind a generic wrapper:
//
//	mementos := cache.NewTyped[*aggregate.Memento](c)
//	if m, ok := mementos.Get("order.order-123"); ok {
//	    ...
//	}
//
// Entries expire per [WithTTL], falling back to LRUOpts.DefaultTTL; expired
// entries are evicted lazily on access.
package cache
