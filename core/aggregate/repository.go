package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/GeorGeWzw/aggregates-go/core/cache"
	"github.com/GeorGeWzw/aggregates-go/core/perkey"
	"github.com/GeorGeWzw/aggregates-go/core/sf"
)

// Repository loads aggregate graphs from an EventStore and commits their
// pending events. It is safe for concurrent use; individual aggregates are
// not, so serialize per stream (see TypedRepository.WithTransaction).
type Repository interface {
	// Load hydrates root from its stream. The root must carry its ID and be
	// clean. WithSnapshot(true) seeds from the latest memento first.
	Load(ctx context.Context, root Root, opts ...LoadOption) error
	// Save commits root's pending events at the next versions. On
	// ErrStreamConflict nothing is committed; reload and retry.
	Save(ctx context.Context, root Root, opts ...SaveOption) error
	// SaveSnapshot takes and persists a memento of root's committed state.
	SaveSnapshot(ctx context.Context, root Root) (*Memento, error)
}

type repository struct {
	log       *slog.Logger
	store     EventStore
	registry  *Registry
	snapshots SnapshotStore
	policy    SnapshotPolicy
	cache     cache.TypedCache[*Memento]
	flights   *sf.Singleflight[*Memento]
	metrics   RepoMetrics
	idGen     IDGenerator
	bucket    string
	cacheTTL  time.Duration
}

var _ Repository = (*repository)(nil)

func NewRepository(log *slog.Logger, store EventStore, registry *Registry, opts ...RepositoryOption) Repository {
	if log == nil {
		log = slog.Default()
	}
	options := newRepoConfig(opts...)
	return &repository{
		log:       log.With(slog.String("component", "repository")),
		store:     store,
		registry:  registry,
		snapshots: options.snapshots,
		policy:    options.policy,
		cache:     cache.NewTyped[*Memento](options.cache),
		flights:   sf.New[*Memento](),
		metrics:   options.metrics,
		idGen:     options.idGen,
		bucket:    options.bucket,
		cacheTTL:  options.cacheTTL,
	}
}

func (r *repository) bindStream(root Root) (StreamID, error) {
	aggType := root.GetAggType()
	if aggType == "" {
		return StreamID{}, errors.New("aggregate type is empty")
	}
	key := root.GetStreamID()
	if key == "" {
		return StreamID{}, errors.New("aggregate id is empty")
	}
	sid := NewStreamID(r.bucket, aggType, key)
	root.EventStream().bind(sid)
	return sid, nil
}

func (r *repository) Load(ctx context.Context, root Root, opts ...LoadOption) error {
	sid, err := r.bindStream(root)
	if err != nil {
		return err
	}
	stream := root.EventStream()
	if stream.HasPending() {
		return fmt.Errorf("load %s: aggregate has pending events", sid.Key())
	}

	defer r.metrics.RepoLoadDuration(sid.Type).ObserveDuration()
	options := newLoadOptions(opts...)
	log := r.log.With(sid.SlogAttr())

	if options.memento {
		if err := r.seedFromMemento(ctx, root, sid, log); err != nil {
			return err
		}
	}

	timer := r.metrics.StoreLoadDuration(sid.Type)
	envs, err := r.store.Load(ctx, sid,
		WithStartAtVersion(stream.Version()+1),
		WithStartAtSeq(stream.Seq()+1),
	)
	timer.ObserveDuration()
	if err != nil {
		// A compacted stream can be gone while its memento carries the state.
		if errors.Is(err, ErrAggregateNotFound) && stream.Version() > 0 {
			return nil
		}
		return err
	}

	if err := Hydrate(root, envs, r.registry); err != nil {
		return err
	}
	if stream.Version() == 0 {
		return fmt.Errorf("%w: %s", ErrAggregateNotFound, sid.Key())
	}

	log.Debug("aggregate loaded",
		stream.Version().SlogAttr(),
		slog.Uint64("seq", stream.Seq()),
		slog.Int("num_events", len(envs)),
	)
	return nil
}

func (r *repository) seedFromMemento(ctx context.Context, root Root, sid StreamID, log *slog.Logger) error {
	if _, ok := any(root).(Snapshottable); !ok {
		return nil
	}
	m, err := r.loadMemento(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrMementoNotFound) {
			return nil
		}
		return fmt.Errorf("load memento: %w", err)
	}
	if err := RestoreMemento(root, m); err != nil {
		return err
	}
	log.Debug("memento applied", m.Version.SlogAttrWithKey("memento_version"), slog.Uint64("memento_seq", m.Seq))
	return nil
}

// loadMemento goes cache, then snapshot store with concurrent loads of the
// same stream collapsed into one round trip.
func (r *repository) loadMemento(ctx context.Context, sid StreamID) (*Memento, error) {
	if r.snapshots == nil {
		return nil, ErrSnapshotStoreUnconfigured
	}
	key := sid.Key()
	if m, ok := r.cache.Get(key); ok {
		r.metrics.MementoHit(sid.Type)
		return m, nil
	}
	r.metrics.MementoMiss(sid.Type)

	timer := r.metrics.SnapshotLoadDuration(sid.Type)
	defer timer.ObserveDuration()
	m, _, err := r.flights.Do(key, func() (*Memento, error) {
		return r.snapshots.LoadSnapshot(ctx, sid)
	})
	if err != nil {
		return nil, err
	}
	r.cache.Put(key, m, cache.WithTTL(r.cacheTTL))
	return m, nil
}

func (r *repository) Save(ctx context.Context, root Root, opts ...SaveOption) error {
	stream := root.EventStream()
	pending := stream.Pending()
	if len(pending) == 0 {
		return nil
	}

	sid, err := r.bindStream(root)
	if err != nil {
		return err
	}

	defer r.metrics.RepoSaveDuration(sid.Type).ObserveDuration()
	options := newSaveOptions(opts...)

	expect := stream.Version()
	next := expect
	now := time.Now()
	envs := make([]Envelope, 0, len(pending))
	for _, ev := range pending {
		name, payload, err := r.registry.Encode(ev)
		if err != nil {
			return err
		}
		next = next.Next()
		e := Envelope{
			ID:            r.idGen(),
			Version:       next,
			Bucket:        sid.Bucket,
			AggregateType: sid.Type,
			AggregateID:   sid.ID,
			Type:          name,
			OccurredAt:    now,
			Data:          payload,
		}
		if err := e.Validate(); err != nil {
			return err
		}
		envs = append(envs, e)
	}

	timer := r.metrics.StoreAppendDuration(sid.Type)
	res, err := r.store.Append(ctx, sid, expect, envs)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrStreamConflict) {
			r.metrics.StreamConflict(sid.Type)
		}
		return fmt.Errorf("save %s: %w", sid.Key(), err)
	}
	if res == nil {
		return fmt.Errorf("save %s: store returned no result", sid.Key())
	}

	r.metrics.EventsAppended(sid.Type, len(envs))
	stream.advance(next, res.LastSeq)
	stream.clearPending()

	r.log.Debug("aggregate saved",
		sid.SlogAttr(),
		stream.Version().SlogAttr(),
		slog.Uint64("seq", stream.Seq()),
		slog.Int("num_events", len(envs)),
	)

	if _, ok := any(root).(Snapshottable); ok {
		if options.memento || r.policy.ShouldSnapshot(stream.SnapshotVersion(), stream.Version()) {
			if _, err := r.SaveSnapshot(ctx, root); err != nil {
				return err
			}
		}
	} else if options.memento {
		return fmt.Errorf("%w: %T", ErrNotSnapshottable, root)
	}
	return nil
}

func (r *repository) SaveSnapshot(ctx context.Context, root Root) (*Memento, error) {
	if r.snapshots == nil {
		return nil, ErrSnapshotStoreUnconfigured
	}
	stream := root.EventStream()
	if stream.StreamID().IsZero() {
		if _, err := r.bindStream(root); err != nil {
			return nil, err
		}
	}

	timer := r.metrics.SnapshotSaveDuration(stream.StreamID().Type)
	defer timer.ObserveDuration()

	m, err := TakeMemento(root)
	if err != nil {
		return nil, err
	}
	if err := r.snapshots.SaveSnapshot(ctx, m); err != nil {
		return nil, fmt.Errorf("save memento %s: %w", m.Stream.Key(), err)
	}
	stream.snapshotTaken(m.Version)

	key := m.Stream.Key()
	r.cache.Put(key, m, cache.WithTTL(r.cacheTTL))
	r.flights.Forget(key)

	r.log.Debug("memento saved", m.SlogAttr())
	return m, nil
}

// TypedRepository is the ergonomic face of Repository for one root type:
// construction, identity parsing and per-stream transactions in one place.
type TypedRepository[T Root] interface {
	GetAggType() string
	// New returns a fresh, unbound aggregate instance.
	New() T
	// NewWithID returns a fresh instance carrying the typed ID parsed from
	// key.
	NewWithID(key string) (T, error)
	Load(ctx context.Context, agg T, opts ...LoadOption) error
	// GetByID loads the aggregate behind key, ErrAggregateNotFound when its
	// stream does not exist.
	GetByID(ctx context.Context, key string, opts ...LoadOption) (T, error)
	// GetOrCreate is GetByID, except a missing stream yields a fresh
	// aggregate instead of an error. Nothing is persisted until Save.
	GetOrCreate(ctx context.Context, key string, opts ...LoadOption) (T, error)
	Save(ctx context.Context, agg T, opts ...SaveOption) error
	SaveSnapshot(ctx context.Context, agg T) (*Memento, error)
	// WithTransaction loads the aggregate behind key, runs fn on it and
	// saves, serialized per stream key and retried on ErrStreamConflict.
	WithTransaction(ctx context.Context, key string, fn func(agg T) error, opts ...TxOption) error
}

type typedRepository[T Root] struct {
	repo  Repository
	log   *slog.Logger
	lanes *perkey.Scheduler[string]
}

func NewTypedRepository[T Root](log *slog.Logger, store EventStore, registry *Registry, opts ...RepositoryOption) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, store, registry, opts...))
}

func NewTypedRepositoryFrom[T Root](log *slog.Logger, repo Repository) TypedRepository[T] {
	if log == nil {
		log = slog.Default()
	}
	return &typedRepository[T]{
		repo:  repo,
		log:   log.With(slog.String("repo", fmt.Sprintf("%T", *new(T)))),
		lanes: perkey.New[string](),
	}
}

func (t *typedRepository[T]) GetAggType() string { return t.New().GetAggType() }

func (t *typedRepository[T]) New() T {
	var agg T
	if rt := reflect.TypeFor[T](); rt.Kind() == reflect.Pointer {
		agg = reflect.New(rt.Elem()).Interface().(T)
	}
	return agg
}

func (t *typedRepository[T]) NewWithID(key string) (T, error) {
	agg := t.New()
	if err := agg.setStreamID(key); err != nil {
		return agg, fmt.Errorf("new %s: %w", t.GetAggType(), err)
	}
	return agg, nil
}

func (t *typedRepository[T]) Load(ctx context.Context, agg T, opts ...LoadOption) error {
	return t.repo.Load(ctx, agg, opts...)
}

func (t *typedRepository[T]) GetByID(ctx context.Context, key string, opts ...LoadOption) (T, error) {
	agg, err := t.NewWithID(key)
	if err != nil {
		return agg, err
	}
	if err := t.repo.Load(ctx, agg, opts...); err != nil {
		return agg, err
	}
	return agg, nil
}

func (t *typedRepository[T]) GetOrCreate(ctx context.Context, key string, opts ...LoadOption) (T, error) {
	agg, err := t.NewWithID(key)
	if err != nil {
		return agg, err
	}
	err = t.repo.Load(ctx, agg, opts...)
	switch {
	case err == nil:
		return agg, nil
	case errors.Is(err, ErrAggregateNotFound):
		return agg, nil
	default:
		return agg, err
	}
}

func (t *typedRepository[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return t.repo.Save(ctx, agg, opts...)
}

func (t *typedRepository[T]) SaveSnapshot(ctx context.Context, agg T) (*Memento, error) {
	return t.repo.SaveSnapshot(ctx, agg)
}

func (t *typedRepository[T]) WithTransaction(ctx context.Context, key string, fn func(agg T) error, opts ...TxOption) error {
	options := newTxOptions(opts...)
	if options.attempts < 1 {
		options.attempts = 1
	}
	return t.lanes.Do(ctx, key, func() error {
		var lastErr error
		for attempt := range options.attempts {
			if attempt > 0 {
				t.log.Debug("retrying transaction",
					slog.String("id", key),
					slog.Int("attempt", attempt+1),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
				}
			}

			var (
				agg T
				err error
			)
			if options.create {
				agg, err = t.GetOrCreate(ctx, key, options.load...)
			} else {
				agg, err = t.GetByID(ctx, key, options.load...)
			}
			if err != nil {
				return err
			}
			if err := fn(agg); err != nil {
				return err
			}
			err = t.Save(ctx, agg, options.save...)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrStreamConflict) {
				return err
			}
			lastErr = err
		}
		return lastErr
	})
}
