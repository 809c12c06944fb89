package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoEvents is returned when an append carries no envelopes.
var ErrNoEvents = errors.New("no events to append")

type (
	// storeLoadReceiver is what a store's internal option struct implements
	// to receive load options. Adapters in other packages satisfy it with
	// their own structs; only the methods need to be exported.
	storeLoadReceiver interface {
		SetStartVersion(v Version)
		SetStartSeq(seq uint64)
	}

	// StoreLoadOption narrows what Load returns.
	StoreLoadOption interface {
		ApplyToStoreLoadOptions(r storeLoadReceiver)
	}

	startVersionOption valueOption[Version]
	startSeqOption     valueOption[uint64]

	// StoreLoadOptions is the ready-made receiver for adapters that do not
	// need their own.
	StoreLoadOptions struct {
		StartVersion Version
		StartSeq     uint64
	}
)

func (o *StoreLoadOptions) SetStartVersion(v Version) { o.StartVersion = v }
func (o *StoreLoadOptions) SetStartSeq(seq uint64)    { o.StartSeq = seq }

func NewStoreLoadOptions(opts ...StoreLoadOption) StoreLoadOptions {
	var o StoreLoadOptions
	for _, opt := range opts {
		opt.ApplyToStoreLoadOptions(&o)
	}
	return o
}

// WithStartAtVersion skips envelopes below version v. Loading on top of a
// memento at version n passes n+1.
func WithStartAtVersion(v Version) StoreLoadOption { return startVersionOption{v: v} }

// WithStartAtSeq skips envelopes below store sequence seq.
func WithStartAtSeq(seq uint64) StoreLoadOption { return startSeqOption{v: seq} }

func (o startVersionOption) ApplyToStoreLoadOptions(r storeLoadReceiver) { r.SetStartVersion(o.v) }
func (o startSeqOption) ApplyToStoreLoadOptions(r storeLoadReceiver)     { r.SetStartSeq(o.v) }

// AppendResult reports what an append committed.
type AppendResult struct {
	// LastSeq is the store sequence of the last committed envelope.
	LastSeq uint64
}

// EventStore persists event streams. Load returns a stream's envelopes in
// version order; a stream that never existed fails with
// ErrAggregateNotFound. Append commits envelopes atomically iff the stream
// is still at the expected version, otherwise it fails with
// ErrStreamConflict.
type EventStore interface {
	Load(ctx context.Context, sid StreamID, opts ...StoreLoadOption) ([]Envelope, error)
	Append(ctx context.Context, sid StreamID, expect Version, envs []Envelope) (*AppendResult, error)
}

// ValidateAppend checks envelopes against the append contract: each one
// valid on its own, addressed to sid, and versioned contiguously on top of
// current. Stores call this before committing anything.
func ValidateAppend(sid StreamID, current Version, envs []Envelope) error {
	for i, env := range envs {
		if err := env.Validate(); err != nil {
			return err
		}
		if env.StreamID() != sid {
			return fmt.Errorf("envelope %s belongs to stream %s, not %s",
				env.ID, env.StreamID().Key(), sid.Key())
		}
		if want := current + Version(i) + 1; env.Version != want {
			return fmt.Errorf("envelope %s has version %d, expected %d", env.ID, env.Version, want)
		}
	}
	return nil
}

// AppendEvents is a convenience for tests and seeding: it wraps raw events
// in envelopes versioned on top of expect and appends them in one call. The
// registry provides names and payload encoding.
func AppendEvents(ctx context.Context, store EventStore, reg *Registry, sid StreamID, expect Version, events ...any) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	now := time.Now()
	envs := make([]Envelope, 0, len(events))
	next := expect
	for _, ev := range events {
		name, payload, err := reg.Encode(ev)
		if err != nil {
			return nil, err
		}
		next = next.Next()
		envs = append(envs, Envelope{
			ID:            nanoID(),
			Version:       next,
			Bucket:        sid.Bucket,
			AggregateType: sid.Type,
			AggregateID:   sid.ID,
			Type:          name,
			OccurredAt:    now,
			Data:          payload,
		})
	}
	res, err := store.Append(ctx, sid, expect, envs)
	if err != nil {
		return nil, fmt.Errorf("append %d events to %s: %w", len(envs), sid.Key(), err)
	}
	return res, nil
}
