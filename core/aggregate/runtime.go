package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Runtime wires registry, store and repository together with shared defaults.
// It is a convenience for tests and small programs; larger setups construct
// the pieces directly.
type Runtime struct {
	id        string
	log       *slog.Logger
	store     EventStore
	snapshots SnapshotStore
	registry  *Registry
	repo      Repository
}

func (r *Runtime) Repository() Repository       { return r.repo }
func (r *Runtime) Store() EventStore            { return r.store }
func (r *Runtime) SnapshotStore() SnapshotStore { return r.snapshots }
func (r *Runtime) Registry() *Registry          { return r.registry }

func NewRuntime(opts ...RuntimeOption) *Runtime {
	options := newRuntimeOptions(opts...)

	log := options.log
	if log == nil {
		log = slog.Default()
	}
	// a short random id tells concurrent runtimes apart in logs
	id := gonanoid.Must(6)
	log = log.With(slog.String("runtime", id))

	rt := &Runtime{
		id:        id,
		log:       log,
		store:     options.store,
		snapshots: options.snapshots,
		registry:  NewRegistry(options.registryOpts...),
	}

	for _, src := range options.sources {
		rt.registry.Add(RouterFor(src).EventDefs()...)
		rt.log.Debug("registered source", slog.String("type", fmt.Sprintf("%T", src)))
	}
	rt.registry.Add(options.events...)

	repoOpts := options.repoOpts
	if rt.snapshots != nil {
		repoOpts = append([]RepositoryOption{WithSnapshotStore(rt.snapshots)}, repoOpts...)
	}
	rt.repo = NewRepository(rt.log, rt.store, rt.registry, repoOpts...)

	return rt
}

// Append seeds raw events into the store through the runtime's registry. Meant
// for tests and fixtures; production writes go through the repository.
func (r *Runtime) Append(ctx context.Context, sid StreamID, expect Version, events ...any) (*AppendResult, error) {
	return AppendEvents(ctx, r.store, r.registry, sid, expect, events...)
}

type (
	runtimeOptions struct {
		log          *slog.Logger
		store        EventStore
		snapshots    SnapshotStore
		events       []EventDef
		sources      []Routed
		repoOpts     []RepositoryOption
		registryOpts []RegistryOption
	}

	// RuntimeOption configures a Runtime.
	RuntimeOption interface {
		applyToRuntime(o *runtimeOptions)
	}
)

func newRuntimeOptions(opts ...RuntimeOption) runtimeOptions {
	options := runtimeOptions{
		store: NewMemoryStore(),
	}
	for _, opt := range opts {
		opt.applyToRuntime(&options)
	}
	return options
}

type (
	// LogOption sets the runtime's base logger.
	LogOption valueOption[*slog.Logger]
	// StoreOption sets the event store, in-memory by default.
	StoreOption valueOption[EventStore]
	// EventsOption registers extra event defs.
	EventsOption struct{ defs []EventDef }
	// SourcesOption registers the events of whole sources by reading their
	// route tables.
	SourcesOption struct{ sources []Routed }
	// RepoOptsOption passes repository options through the runtime.
	RepoOptsOption struct{ opts []RepositoryOption }
	// runtimeOptsOption nests option slices, handy for helpers that wrap NewRuntime.
	runtimeOptsOption struct{ opts []RuntimeOption }
)

func WithLog(log *slog.Logger) LogOption { return LogOption{v: log} }

func WithStore(store EventStore) StoreOption { return StoreOption{v: store} }

func WithEvents(defs ...EventDef) EventsOption { return EventsOption{defs: defs} }

// WithSources registers every event routed by the given sources, typically
// one zero-value root per aggregate type:
//
//	aggregate.NewRuntime(aggregate.WithSources(new(Order)))
func WithSources(sources ...Routed) SourcesOption { return SourcesOption{sources: sources} }

func WithRepoOpts(opts ...RepositoryOption) RepoOptsOption { return RepoOptsOption{opts: opts} }

func WithRuntimeOpts(opts ...RuntimeOption) RuntimeOption { return runtimeOptsOption{opts: opts} }

func (o LogOption) applyToRuntime(options *runtimeOptions)      { options.log = o.v }
func (o StoreOption) applyToRuntime(options *runtimeOptions)    { options.store = o.v }
func (o EventsOption) applyToRuntime(options *runtimeOptions)   { options.events = append(options.events, o.defs...) }
func (o SourcesOption) applyToRuntime(options *runtimeOptions)  { options.sources = append(options.sources, o.sources...) }
func (o RepoOptsOption) applyToRuntime(options *runtimeOptions) { options.repoOpts = append(options.repoOpts, o.opts...) }
func (o runtimeOptsOption) applyToRuntime(options *runtimeOptions) {
	for _, opt := range o.opts {
		opt.applyToRuntime(options)
	}
}

// SnapshotStoreOption doubles as a runtime option.
func (o SnapshotStoreOption) applyToRuntime(options *runtimeOptions) { options.snapshots = o.v }

// CodecOption doubles as a runtime option for the registry codec.
func (o CodecOption) applyToRuntime(options *runtimeOptions) {
	options.registryOpts = append(options.registryOpts, o)
}
