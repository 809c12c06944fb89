package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryStore is an EventStore backed by process memory. It enforces the
// same optimistic concurrency contract as the durable adapters and is the
// store of choice for tests and local development.
type MemoryStore struct {
	log *slog.Logger

	mu    sync.Mutex
	seq   uint64
	byKey map[string][]Envelope
}

var _ EventStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		log:   slog.Default().With(slog.String("component", "memstore")),
		byKey: make(map[string][]Envelope),
	}
}

func (s *MemoryStore) Load(_ context.Context, sid StreamID, opts ...StoreLoadOption) ([]Envelope, error) {
	if err := sid.Validate(); err != nil {
		return nil, err
	}
	options := NewStoreLoadOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.byKey[sid.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAggregateNotFound, sid.Key())
	}
	out := make([]Envelope, 0, len(stream))
	for _, env := range stream {
		if env.Version >= options.StartVersion && env.Seq >= options.StartSeq {
			out = append(out, env)
		}
	}
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, sid StreamID, expect Version, envs []Envelope) (*AppendResult, error) {
	if err := sid.Validate(); err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, ErrNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.byKey[sid.Key()]
	current := tailVersion(stream)
	if current != expect {
		return nil, fmt.Errorf("%w: stream %s at version %d, expected %d",
			ErrStreamConflict, sid.Key(), current, expect)
	}
	if err := ValidateAppend(sid, current, envs); err != nil {
		return nil, err
	}

	res := &AppendResult{}
	for _, env := range envs {
		s.seq++
		env.Seq = s.seq
		res.LastSeq = env.Seq
		stream = append(stream, env)
	}
	s.byKey[sid.Key()] = stream

	s.log.Debug("events appended",
		sid.SlogAttr(),
		slog.Int("num_events", len(envs)),
		slog.Uint64("last_seq", res.LastSeq),
	)
	return res, nil
}

// tailVersion is the version of the last envelope, zero for an empty stream.
func tailVersion(stream []Envelope) Version {
	if len(stream) == 0 {
		return 0
	}
	return stream[len(stream)-1].Version
}

// Streams returns the number of distinct streams, for tests.
func (s *MemoryStore) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
