package aggregate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrUnresolvedHandler is returned when no source in the aggregate graph
	// has a route for an event.
	ErrUnresolvedHandler = errors.New("no route for event")
	// ErrAmbiguousRoute is returned when an event matches more than one
	// registered interface route on the same source. Ambiguity is a modeling
	// bug and never resolved by picking one.
	ErrAmbiguousRoute = errors.New("ambiguous event route")
)

// Routed is implemented by every event source. RegisterRoutes is called once
// per source type to build its dispatch table; it must register all routes
// and nothing else.
type Routed interface {
	RegisterRoutes(r *Router)
}

// route is one resolved dispatch entry.
type route struct {
	eventName string
	invoke    func(src, event any)
}

type ifaceRoute struct {
	iface  reflect.Type
	invoke func(src, event any)
}

// Router is the dispatch table of one event source type. It is built exactly
// once per type via Routed.RegisterRoutes and is immutable afterwards, except
// for the resolution cache that remembers which interface route a concrete
// event type landed on.
type Router struct {
	owner   reflect.Type
	byType  map[reflect.Type]route
	byIface []ifaceRoute
	defs    []EventDef
	sealed  bool

	mu    sync.RWMutex
	cache map[reflect.Type]route
}

func newRouter(owner reflect.Type) *Router {
	return &Router{
		owner:  owner,
		byType: map[reflect.Type]route{},
		cache:  map[reflect.Type]route{},
	}
}

var routers sync.Map // reflect.Type -> *Router

// RouterFor returns the dispatch table for src's dynamic type, building it on
// first use. Concurrent first calls may each build a table; the first one
// stored wins and the others are discarded.
func RouterFor(src Routed) *Router {
	t := reflect.TypeOf(src)
	if r, ok := routers.Load(t); ok {
		return r.(*Router)
	}
	r := newRouter(t)
	src.RegisterRoutes(r)
	r.sealed = true
	actual, _ := routers.LoadOrStore(t, r)
	return actual.(*Router)
}

// On registers the route for the concrete event type E on source type S.
// Events of type E (raised or replayed as *E) are applied by calling apply.
// Registering the same event type twice, or registering outside
// RegisterRoutes, panics: routes are static and duplicates are programmer
// errors.
func On[S any, E any](r *Router, apply func(s *S, e *E)) {
	if apply == nil {
		panic("aggregate: nil route handler")
	}
	r.checkOwner(reflect.TypeFor[*S]())
	et := reflect.TypeFor[E]()
	if _, dup := r.byType[et]; dup {
		panic(fmt.Sprintf("aggregate: duplicate route for %s on %s", et, r.owner))
	}
	def := Event[E]()
	r.byType[et] = route{
		eventName: def.Name,
		invoke: func(src, event any) {
			switch e := event.(type) {
			case *E:
				apply(src.(*S), e)
			case E:
				apply(src.(*S), &e)
			}
		},
	}
	r.defs = append(r.defs, def)
}

// OnIface registers a fallback route for every event implementing interface
// I. A concrete route always wins over an interface route; an event matching
// two interface routes fails with ErrAmbiguousRoute at dispatch. I must be an
// interface type.
func OnIface[S any, I any](r *Router, apply func(s *S, e I)) {
	if apply == nil {
		panic("aggregate: nil route handler")
	}
	r.checkOwner(reflect.TypeFor[*S]())
	it := reflect.TypeFor[I]()
	if it.Kind() != reflect.Interface {
		panic(fmt.Sprintf("aggregate: OnIface needs an interface type, got %s", it))
	}
	for _, ir := range r.byIface {
		if ir.iface == it {
			panic(fmt.Sprintf("aggregate: duplicate interface route for %s on %s", it, r.owner))
		}
	}
	r.byIface = append(r.byIface, ifaceRoute{
		iface: it,
		invoke: func(src, event any) {
			apply(src.(*S), event.(I))
		},
	})
}

func (r *Router) checkOwner(t reflect.Type) {
	if r.sealed {
		panic(fmt.Sprintf("aggregate: routes for %s must be registered inside RegisterRoutes", r.owner))
	}
	if t != r.owner {
		panic(fmt.Sprintf("aggregate: route for %s registered on router of %s", t, r.owner))
	}
}

// EventDefs returns the defs of all concretely routed event types, in
// registration order. RegisterSourceEvents feeds them into a Registry.
func (r *Router) EventDefs() []EventDef {
	out := make([]EventDef, len(r.defs))
	copy(out, r.defs)
	return out
}

// resolve finds the route for event on this source. Concrete routes win;
// otherwise the registered interfaces are scanned and the event must match
// exactly one. Successful interface resolutions are cached per concrete type,
// misses are not, so a handler registered late for a new build still errors
// the same way every time.
func (r *Router) resolve(event any) (route, error) {
	t := reflect.TypeOf(event)
	if t == nil {
		return route{}, fmt.Errorf("%w: untyped nil event", ErrUnresolvedHandler)
	}
	key := t
	if key.Kind() == reflect.Pointer {
		key = key.Elem()
	}
	if rt, ok := r.byType[key]; ok {
		return rt, nil
	}

	r.mu.RLock()
	rt, ok := r.cache[t]
	r.mu.RUnlock()
	if ok {
		return rt, nil
	}

	var (
		found   []ifaceRoute
		matches []string
	)
	for _, ir := range r.byIface {
		if t.Implements(ir.iface) {
			found = append(found, ir)
			matches = append(matches, ir.iface.String())
		}
	}
	switch len(found) {
	case 0:
		return route{}, fmt.Errorf("%w: %s has no route for %s", ErrUnresolvedHandler, r.owner, t)
	case 1:
		rt = route{eventName: eventNameFor(event), invoke: found[0].invoke}
		r.mu.Lock()
		r.cache[t] = rt
		r.mu.Unlock()
		return rt, nil
	default:
		return route{}, fmt.Errorf("%w: %s matches %s on %s",
			ErrAmbiguousRoute, t, strings.Join(matches, " and "), r.owner)
	}
}
