package aggregate

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type (
	routeSrc struct {
		Base[string]
		concrete int
		audits   []string
		total    int
	}

	// concrete event that also implements auditable; the concrete route
	// must win
	priceSet struct{ P int }

	auditable interface{ AuditTag() string }
	priceable interface{ Amount() int }

	auditedEvent  struct{ Tag string }
	pricedEvent   struct{ P int }
	twoFacedEvent struct{}
)

func (e *priceSet) AuditTag() string      { return "price" }
func (e *auditedEvent) AuditTag() string  { return e.Tag }
func (e *pricedEvent) Amount() int        { return e.P }
func (e *twoFacedEvent) AuditTag() string { return "both" }
func (e *twoFacedEvent) Amount() int      { return 0 }

func (s *routeSrc) GetAggType() string { return "route_src" }

func (s *routeSrc) RegisterRoutes(r *Router) {
	On(r, func(s *routeSrc, e *priceSet) { s.concrete = e.P })
	OnIface(r, func(s *routeSrc, e auditable) { s.audits = append(s.audits, e.AuditTag()) })
	OnIface(r, func(s *routeSrc, e priceable) { s.total += e.Amount() })
}

func TestRouter_ConcreteWinsOverInterface(t *testing.T) {
	s := &routeSrc{}
	require.NoError(t, ApplyEvent(s, &priceSet{P: 9}))
	require.Equal(t, 9, s.concrete)
	require.Empty(t, s.audits)
}

func TestRouter_ValueAndPointerEvents(t *testing.T) {
	s := &routeSrc{}
	require.NoError(t, ApplyEvent(s, priceSet{P: 3}))
	require.NoError(t, ApplyEvent(s, &priceSet{P: 4}))
	require.Equal(t, 4, s.concrete)
}

func TestRouter_InterfaceFallback(t *testing.T) {
	s := &routeSrc{}
	require.NoError(t, ApplyEvent(s, &auditedEvent{Tag: "a"}))
	require.NoError(t, ApplyEvent(s, &pricedEvent{P: 5}))
	require.Equal(t, []string{"a"}, s.audits)
	require.Equal(t, 5, s.total)
}

func TestRouter_InterfaceResolutionIsCached(t *testing.T) {
	s := &routeSrc{}
	r := RouterFor(s)

	require.NoError(t, ApplyEvent(s, &auditedEvent{Tag: "x"}))

	r.mu.RLock()
	_, cached := r.cache[reflect.TypeOf(&auditedEvent{})]
	r.mu.RUnlock()
	require.True(t, cached)
}

func TestRouter_Ambiguous(t *testing.T) {
	s := &routeSrc{}
	err := ApplyEvent(s, &twoFacedEvent{})
	require.ErrorIs(t, err, ErrAmbiguousRoute)

	// ambiguity is never cached
	r := RouterFor(s)
	r.mu.RLock()
	_, cached := r.cache[reflect.TypeOf(&twoFacedEvent{})]
	r.mu.RUnlock()
	require.False(t, cached)
}

func TestRouter_Unresolved(t *testing.T) {
	s := &routeSrc{}
	type unrouted struct{}
	err := ApplyEvent(s, &unrouted{})
	require.ErrorIs(t, err, ErrUnresolvedHandler)
}

type dupRouteSrc struct{ Base[string] }

func (s *dupRouteSrc) GetAggType() string { return "dup" }
func (s *dupRouteSrc) RegisterRoutes(r *Router) {
	On(r, func(s *dupRouteSrc, e *priceSet) {})
	On(r, func(s *dupRouteSrc, e *priceSet) {})
}

func TestRouter_DuplicateRoutePanics(t *testing.T) {
	require.Panics(t, func() { RouterFor(&dupRouteSrc{}) })
}

func TestRouter_RegistrationAfterBuildPanics(t *testing.T) {
	r := RouterFor(&routeSrc{})
	require.Panics(t, func() {
		On(r, func(s *routeSrc, e *auditedEvent) {})
	})
}

func TestRouter_WrongOwnerPanics(t *testing.T) {
	r := newRouter(reflect.TypeFor[*routeSrc]())
	require.Panics(t, func() {
		On(r, func(s *dupRouteSrc, e *auditedEvent) {})
	})
}

type nonIfaceSrc struct{ Base[string] }

func (s *nonIfaceSrc) GetAggType() string { return "non_iface" }
func (s *nonIfaceSrc) RegisterRoutes(r *Router) {
	OnIface(r, func(s *nonIfaceSrc, e priceSet) {})
}

func TestRouter_OnIfaceNeedsInterface(t *testing.T) {
	require.Panics(t, func() { RouterFor(&nonIfaceSrc{}) })
}

func TestRouterFor_SharedPerType(t *testing.T) {
	var (
		wg  sync.WaitGroup
		out = make([]*Router, 16)
	)
	for i := range out {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = RouterFor(&routeSrc{})
		}()
	}
	wg.Wait()

	for _, r := range out[1:] {
		require.Same(t, out[0], r)
	}
}

func TestRouter_EventDefs(t *testing.T) {
	defs := RouterFor(&routeSrc{}).EventDefs()
	require.Len(t, defs, 1)
	require.Contains(t, defs[0].Name, "priceSet")
	require.IsType(t, &priceSet{}, defs[0].New())
}
