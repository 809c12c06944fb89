package aggregate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GeorGeWzw/aggregates-go/internal/codec"
	"github.com/GeorGeWzw/aggregates-go/internal/reflector"
)

// ErrUnknownEventType is returned when an event name has no registered
// definition. Decode fails with it on replay; Encode fails with it on save,
// so an unregistered event is caught before it reaches the store.
var ErrUnknownEventType = errors.New("unknown event type")

// EventNamer overrides the wire name of an event type. Without it the name is
// the type's package path and name.
type EventNamer interface {
	EventType() string
}

func eventNameFor(ev any) string {
	if n, ok := ev.(EventNamer); ok {
		return n.EventType()
	}
	return reflector.InfoOf(ev).Name
}

// EventDef binds an event's wire name to a constructor for its empty value.
type EventDef struct {
	Name string
	New  func() any
}

// Event returns the EventDef for event type E.
func Event[E any]() EventDef {
	return EventDef{
		Name: eventNameFor(new(E)),
		New:  func() any { return new(E) },
	}
}

// Registry maps event names to constructors and owns the payload codec. A
// repository needs one to decode stored envelopes back into typed events.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]EventDef
	codec codec.Codec
}

// RegistryOption configures a Registry.
type RegistryOption interface {
	applyToRegistry(r *Registry)
}

// CodecOption sets the payload codec, json by default.
type CodecOption valueOption[codec.Codec]

func WithCodec(c codec.Codec) CodecOption         { return CodecOption{v: c} }
func (o CodecOption) applyToRegistry(r *Registry) { r.codec = o.v }

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defs:  map[string]EventDef{},
		codec: codec.Default(),
	}
	for _, opt := range opts {
		opt.applyToRegistry(r)
	}
	return r
}

// Add registers event definitions. Re-adding a name replaces its def, so
// registering the same event from two sources is harmless.
func (r *Registry) Add(defs ...EventDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		r.defs[def.Name] = def
	}
}

func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Decode turns a stored envelope back into a typed event.
func (r *Registry) Decode(env Envelope) (any, error) {
	r.mu.RLock()
	def, ok := r.defs[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	ev := def.New()
	if env.Data != nil {
		if err := r.codec.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	return ev, nil
}

// Encode serializes an event for storage and returns its wire name. Encoding
// an unregistered event fails: it could never be decoded again.
func (r *Registry) Encode(ev any) (string, []byte, error) {
	name := eventNameFor(ev)
	if !r.Known(name) {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}
	data, err := r.codec.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return name, data, nil
}

// RegisterSourceEvents adds every concretely routed event of source type S to
// the registry. The usual bootstrap is one call per aggregate root:
//
//	reg := aggregate.NewRegistry()
//	aggregate.RegisterSourceEvents[Order](reg)
func RegisterSourceEvents[S any, PS interface {
	Routed
	*S
}](r *Registry) {
	var s S
	r.Add(RouterFor(PS(&s)).EventDefs()...)
}
