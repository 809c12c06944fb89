// Package sf is a typed wrapper over golang.org/x/sync/singleflight.
//
// In this module it backs memento loads: when many hydrations of the same
// stream miss the cache at once, their snapshot-store reads collapse into
// one round trip and every waiter gets the same memento.
//
//	flights := sf.New[*aggregate.Memento]()
//
//	m, shared, err := flights.Do("order.order-123", func() (*aggregate.Memento, error) {
//	    return store.LoadSnapshot(ctx, sid)
//	})
//
// After a write invalidates the key, [Singleflight.Forget] makes the next
// read execute instead of joining a stale flight.
package sf
