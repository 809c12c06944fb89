package sf

import "golang.org/x/sync/singleflight"

// Singleflight collapses concurrent calls that share a key into one
// execution. The first caller runs fn; everyone arriving before it
// returns gets that call's result.
type Singleflight[T any] struct {
	group singleflight.Group
}

func New[T any]() *Singleflight[T] {
	return &Singleflight[T]{}
}

// Do runs fn for key unless a call for the same key is already in flight,
// in which case it waits for that call instead. shared reports whether
// the result went to more than one caller.
func (s *Singleflight[T]) Do(key string, fn func() (T, error)) (out T, shared bool, err error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return out, shared, err
	}
	return v.(T), shared, nil
}

// Forget drops the in-flight call for key so the next Do executes fn again
// instead of joining an earlier call.
func (s *Singleflight[T]) Forget(key string) {
	s.group.Forget(key)
}
