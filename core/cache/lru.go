package cache

import (
	"container/list"
	"sync"
	"time"
)

type LRUOpts struct {
	// Size is the maximum number of entries (default 128).
	Size int
	// DefaultTTL applies to entries stored without an explicit WithTTL,
	// and to entries stored with WithTTL(0). Zero means no expiry.
	DefaultTTL time.Duration
}

// LRU is an in-memory cache with least-recently-used eviction and optional
// per-entry TTL. A single goroutine owns the state and executes operations
// sent to it, so the cache is safe for concurrent use without locking.
// Expired entries fall out lazily on access.
type LRU struct {
	ops        chan func(*lruState)
	done       chan struct{}
	closeOnce  sync.Once
	defaultTTL time.Duration
}

// lruState is confined to the run goroutine.
type lruState struct {
	max   int
	order *list.List // front is most recent
	index map[string]*list.Element
}

type lruEntry struct {
	key       string
	val       any
	expiresAt time.Time // zero means no expiry
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewLRU(opts LRUOpts) *LRU {
	size := opts.Size
	if size <= 0 {
		size = 128
	}
	l := &LRU{
		ops:        make(chan func(*lruState)),
		done:       make(chan struct{}),
		defaultTTL: opts.DefaultTTL,
	}
	go l.run(size)
	return l
}

func (l *LRU) run(size int) {
	s := &lruState{
		max:   size,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
	for {
		select {
		case <-l.done:
			return
		case op := <-l.ops:
			op(s)
		}
	}
}

// exec runs op on the cache goroutine, false when the cache is closed.
func (l *LRU) exec(op func(*lruState)) bool {
	select {
	case l.ops <- op:
		return true
	case <-l.done:
		return false
	}
}

func (l *LRU) Get(key string) (any, bool) {
	type lookup struct {
		val any
		ok  bool
	}
	out := make(chan lookup, 1)
	hit := l.exec(func(s *lruState) {
		v, ok := s.get(key)
		out <- lookup{val: v, ok: ok}
	})
	if !hit {
		return nil, false
	}
	r := <-out
	return r.val, r.ok
}

func (l *LRU) Put(key string, value any, opts ...PutOption) {
	var po PutOptions
	for _, opt := range opts {
		opt(&po)
	}
	ttl := po.TTL
	if ttl == 0 {
		ttl = l.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	l.exec(func(s *lruState) { s.put(key, value, expiresAt) })
}

func (l *LRU) Delete(key string) {
	l.exec(func(s *lruState) { s.remove(key) })
}

// Close stops the cache goroutine. Operations after Close are no-ops.
func (l *LRU) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (s *lruState) get(key string) (any, bool) {
	ele, ok := s.index[key]
	if !ok {
		return nil, false
	}
	ent := ele.Value.(*lruEntry)
	if ent.expired(time.Now()) {
		s.drop(ele)
		return nil, false
	}
	s.order.MoveToFront(ele)
	return ent.val, true
}

func (s *lruState) put(key string, val any, expiresAt time.Time) {
	if ele, ok := s.index[key]; ok {
		s.order.MoveToFront(ele)
		ent := ele.Value.(*lruEntry)
		ent.val = val
		ent.expiresAt = expiresAt
		return
	}
	s.index[key] = s.order.PushFront(&lruEntry{key: key, val: val, expiresAt: expiresAt})
	if s.order.Len() > s.max {
		if last := s.order.Back(); last != nil {
			s.drop(last)
		}
	}
}

func (s *lruState) remove(key string) {
	if ele, ok := s.index[key]; ok {
		s.drop(ele)
	}
}

func (s *lruState) drop(ele *list.Element) {
	s.order.Remove(ele)
	delete(s.index, ele.Value.(*lruEntry).key)
}

var _ Cache = (*LRU)(nil)
