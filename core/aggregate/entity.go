package aggregate

import "fmt"

// EntityTargeted is implemented by events that address one entity instance
// inside an aggregate graph. During routing, an entity only receives a
// targeted event when the keys match; events without the interface may land
// on any source.
type EntityTargeted interface {
	TargetEntityID() string
}

// Entity is the embeddable core of a child entity. A mounted entity shares
// its parent's stream handle, so events it raises join the parent's pending
// log and commit under the parent's version. An entity has no stream of its
// own: raising on an unmounted entity fails with ErrNotMounted.
type Entity struct {
	id     string
	stream *Stream
	mounts []EventSource
}

func (e *Entity) GetEntityID() string   { return e.id }
func (e *Entity) SetEntityID(id string) { e.id = id }

// EventStream returns the adopted stream handle, nil before mounting.
func (e *Entity) EventStream() *Stream { return e.stream }

// GetVersion returns the shared stream's version, zero before mounting.
func (e *Entity) GetVersion() Version {
	if e.stream == nil {
		return 0
	}
	return e.stream.Version()
}

func (e *Entity) attached() []EventSource { return e.mounts }

// Mount attaches grandchildren. They adopt the shared stream once this
// entity itself is mounted; mounting order does not matter.
func (e *Entity) Mount(children ...EventSource) {
	for _, c := range children {
		ad, ok := c.(streamAdopter)
		if !ok {
			panic(fmt.Sprintf("aggregate: %T cannot share a stream, embed Entity", c))
		}
		if e.stream != nil {
			ad.adoptStream(e.stream)
		}
		e.mounts = append(e.mounts, c)
	}
}

func (e *Entity) adoptStream(s *Stream) {
	e.stream = s
	for _, c := range e.mounts {
		c.(streamAdopter).adoptStream(s)
	}
}

// entityMatches reports whether src may receive event under entity
// targeting. Only the combination of a targeted event and a keyed entity
// constrains routing.
func entityMatches(src EventSource, event any) bool {
	et, ok := event.(EntityTargeted)
	if !ok {
		return true
	}
	keyed, ok := src.(interface{ GetEntityID() string })
	if !ok {
		return true
	}
	return keyed.GetEntityID() == et.TargetEntityID()
}
