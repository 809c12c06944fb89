package aggregate

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound is returned when a stream has no committed events.
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrStreamConflict is returned when an append expected a version the
	// stream has moved past. Reload and retry, or use WithTransaction.
	ErrStreamConflict = errors.New("stream version conflict")
	// ErrNotMounted is returned when events are raised on an entity that was
	// never mounted into an aggregate graph.
	ErrNotMounted = errors.New("entity not mounted")
)

// EventSource is the common contract of aggregate roots and child entities:
// anything that routes events and shares a stream handle.
type EventSource interface {
	Routed
	// EventStream returns the stream handle shared across the graph, or nil
	// for an entity that has not been mounted yet.
	EventStream() *Stream
	attached() []EventSource
}

// Root is an aggregate root. Concrete roots embed Base[TID] and implement
// GetAggType; the unexported method makes embedding Base mandatory.
type Root interface {
	EventSource
	// GetAggType is the aggregate type name used in stream identity, for
	// example "order".
	GetAggType() string
	// GetStreamID returns the aggregate key within its type namespace.
	GetStreamID() string
	setStreamID(key string) error
}

// streamAdopter is implemented by Entity; Mount uses it to hand the shared
// stream down the graph.
type streamAdopter interface {
	adoptStream(s *Stream)
}

// Base is the embeddable core of an aggregate root. TID is the typed
// aggregate identifier: string, uuid.UUID, an integer type, or anything
// registered with RegisterIdentity.
type Base[TID comparable] struct {
	id     TID
	stream *Stream
	mounts []EventSource
}

func (b *Base[TID]) GetID() TID   { return b.id }
func (b *Base[TID]) SetID(id TID) { b.id = id }

// GetStreamID formats the typed ID into its stream key.
func (b *Base[TID]) GetStreamID() string { return FormatID(b.id) }

func (b *Base[TID]) setStreamID(key string) error {
	id, err := ResolveID[TID](key)
	if err != nil {
		return err
	}
	b.id = id
	return nil
}

func (b *Base[TID]) EventStream() *Stream {
	if b.stream == nil {
		b.stream = &Stream{}
	}
	return b.stream
}

func (b *Base[TID]) GetVersion() Version { return b.EventStream().Version() }
func (b *Base[TID]) GetSeq() uint64      { return b.EventStream().Seq() }

func (b *Base[TID]) attached() []EventSource { return b.mounts }

// Mount attaches child entities to the root. Children adopt the root's
// stream handle: their events join the same pending log and commit under the
// same version. Mounting something that does not embed Entity panics.
func (b *Base[TID]) Mount(children ...EventSource) {
	s := b.EventStream()
	for _, c := range children {
		ad, ok := c.(streamAdopter)
		if !ok {
			panic(fmt.Sprintf("aggregate: %T cannot share a stream, embed Entity", c))
		}
		ad.adoptStream(s)
		b.mounts = append(b.mounts, c)
	}
}

// boundRoute is a route resolved against a specific source in the graph.
type boundRoute struct {
	rt  route
	src EventSource
}

func (br boundRoute) invoke(event any) { br.rt.invoke(br.src, event) }

// resolveGraph finds the source that handles event: src itself first, then
// its mounted children depth-first in mount order. Events addressing one
// entity (EntityTargeted) only match entities with that key. The first match
// wins; ambiguity inside a single source is fatal and returned as is.
func resolveGraph(src EventSource, event any) (boundRoute, error) {
	rt, err := RouterFor(src).resolve(event)
	if err == nil {
		return boundRoute{rt: rt, src: src}, nil
	}
	if !errors.Is(err, ErrUnresolvedHandler) {
		return boundRoute{}, err
	}
	for _, child := range src.attached() {
		if !entityMatches(child, event) {
			continue
		}
		br, cerr := resolveGraph(child, event)
		if cerr == nil {
			return br, nil
		}
		if !errors.Is(cerr, ErrUnresolvedHandler) {
			return boundRoute{}, cerr
		}
	}
	return boundRoute{}, err
}

// Raise validates events, records them on the shared stream and applies them
// through the graph's routes, one event at a time. The route is resolved
// before an event is recorded, so an unroutable or invalid event changes
// nothing. Earlier events of the same call stay applied when a later one
// fails; discard the aggregate in that case.
func Raise(src EventSource, events ...any) error {
	if len(events) == 0 {
		return nil
	}
	stream := src.EventStream()
	if stream == nil {
		return fmt.Errorf("%w: %T", ErrNotMounted, src)
	}
	for _, ev := range events {
		if v, ok := ev.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("invalid %T: %w", ev, err)
			}
		}
		br, err := resolveGraph(src, ev)
		if err != nil {
			return err
		}
		stream.record(ev)
		br.invoke(ev)
	}
	return nil
}

// Apply is the factory form of Raise: it constructs the event of type E,
// hands it to configure and raises it on src. A nil configure raises the
// zero event.
func Apply[E any](src EventSource, configure func(e *E)) error {
	e := new(E)
	if configure != nil {
		configure(e)
	}
	return Raise(src, e)
}

// ApplyEvent routes a single event into the graph without recording it as
// pending. Replay uses this path; commands normally go through Raise. Both
// share the same route resolution.
func ApplyEvent(src EventSource, event any) error {
	br, err := resolveGraph(src, event)
	if err != nil {
		return err
	}
	br.invoke(event)
	return nil
}

// Hydrate replays committed envelopes into the aggregate graph. It runs in
// two phases: every envelope is version-checked and decoded first, then the
// events are routed in order, advancing the stream per event. A decode gap or
// an unroutable event aborts before, respectively at, the offending event.
func Hydrate(root Root, envs []Envelope, dec Decoder) error {
	if len(envs) == 0 {
		return nil
	}
	stream := root.EventStream()

	events := make([]any, len(envs))
	v := stream.Version()
	for i, env := range envs {
		if env.Version != v+1 {
			return fmt.Errorf("stream %s: expect version %d, got %d",
				stream.StreamID().Key(), v+1, env.Version)
		}
		v = env.Version
		ev, err := dec.Decode(env)
		if err != nil {
			return err
		}
		events[i] = ev
	}

	for i, ev := range events {
		if err := ApplyEvent(root, ev); err != nil {
			return fmt.Errorf("replay %s at version %d: %w", envs[i].Type, envs[i].Version, err)
		}
		stream.advance(envs[i].Version, envs[i].Seq)
	}
	return nil
}
