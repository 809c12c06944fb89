// Package perkey executes funcs serialized by key: two submissions that
// share a key never overlap and run in arrival order, while submissions
// for different keys proceed in parallel.
//
// One goroutine, called a lane, serves each live key. Lanes spin up on
// first use and are reaped after sitting idle, so an unbounded key space
// (one key per event stream, say) does not leak goroutines.
package perkey

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned for submissions after Close.
var ErrClosed = errors.New("perkey: closed")

type options struct {
	queueSize int
	idleAfter time.Duration
}

// Option tunes a Scheduler.
type Option func(*options)

// WithQueueSize caps how many calls may queue on one lane before further
// submitters block. Default 64.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithIdleAfter sets how long a lane may sit idle before its goroutine
// exits and the lane is removed. Default one minute.
func WithIdleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleAfter = d
		}
	}
}

// Scheduler fans submissions out to per-key lanes. Construct with New;
// the zero value has no lane map and must not be used.
type Scheduler[K comparable] struct {
	queueSize int
	idleAfter time.Duration

	mu       sync.Mutex
	lanes    map[K]*lane
	closed   bool
	inflight sync.WaitGroup
}

// lane is one key's serial executor.
type lane struct {
	queue chan call
	// pending counts accepted but unfinished calls. Guarded by
	// Scheduler.mu; the reaper only removes a lane at zero.
	pending int
}

type call struct {
	run    func() error
	result chan error
}

// New builds a Scheduler with no live lanes.
func New[K comparable](opts ...Option) *Scheduler[K] {
	o := options{queueSize: 64, idleAfter: time.Minute}
	for _, apply := range opts {
		apply(&o)
	}
	return &Scheduler[K]{
		queueSize: o.queueSize,
		idleAfter: o.idleAfter,
		lanes:     make(map[K]*lane),
	}
}

// Do runs fn on key's lane and returns fn's error once it finished.
// Cancelling ctx while the submission waits for a queue slot withdraws
// it; cancelling after it was queued only ends the wait, the call itself
// still runs on the lane.
func (s *Scheduler[K]) Do(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ln := s.lane(key)
	ln.pending++
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	c := call{run: fn, result: make(chan error, 1)}

	select {
	case ln.queue <- c:
	case <-ctx.Done():
		s.mu.Lock()
		ln.pending--
		s.mu.Unlock()
		return ctx.Err()
	}

	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lanes returns the number of live lanes. Mostly useful in tests.
func (s *Scheduler[K]) Lanes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}

// Close rejects further submissions, lets queued calls finish, and shuts
// every lane down. Safe to call more than once.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return
	}

	// no new submissions can start; once the in-flight ones are past
	// their enqueue, closing the queues cannot race a send
	s.inflight.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.lanes {
		close(ln.queue)
	}
	s.lanes = nil
}

// lane returns the live lane for key, starting one when none exists.
// Callers hold mu.
func (s *Scheduler[K]) lane(key K) *lane {
	if ln, ok := s.lanes[key]; ok {
		return ln
	}
	ln := &lane{queue: make(chan call, s.queueSize)}
	s.lanes[key] = ln
	go s.serve(key, ln)
	return ln
}

// serve drains one lane until its queue closes or the idle timer fires
// with nothing pending.
func (s *Scheduler[K]) serve(key K, ln *lane) {
	idle := time.NewTimer(s.idleAfter)
	defer idle.Stop()

	for {
		select {
		case c, ok := <-ln.queue:
			if !ok {
				return
			}
			c.result <- c.run()
			s.mu.Lock()
			ln.pending--
			s.mu.Unlock()
			idle.Reset(s.idleAfter)
		case <-idle.C:
			if s.reap(key, ln) {
				return
			}
			idle.Reset(s.idleAfter)
		}
	}
}

// reap removes the lane when nothing is pending. A closed scheduler keeps
// its lanes; Close owns their shutdown.
func (s *Scheduler[K]) reap(key K, ln *lane) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ln.pending > 0 || s.closed {
		return false
	}
	delete(s.lanes, key)
	return true
}
