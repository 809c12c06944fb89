// Package aggregate is the runtime core for event-sourced domain models:
// typed identities, static event routing, aggregate graphs that share one
// stream, and a repository with optimistic concurrency and mementos.
//
// # Overview
//
// State lives as an ordered stream of events. An aggregate is rebuilt by
// replaying its stream and changed by raising new events; nothing mutates
// state outside an event handler. Version 1 is the first committed event and
// an [Envelope] carries the version the stream has after its event applied.
//
// # Aggregates and Routing
//
// A root embeds [Base] with its typed ID and declares its routes once in
// RegisterRoutes. Routes are static: [On] binds one concrete event type,
// [OnIface] catches everything implementing an interface. A concrete route
// always wins; an event matching two interface routes is a modeling bug and
// fails with [ErrAmbiguousRoute].
//
//	type Order struct {
//	    aggregate.Base[uuid.UUID]
//	    Status string
//	}
//
//	func (o *Order) GetAggType() string { return "order" }
//
//	func (o *Order) RegisterRoutes(r *aggregate.Router) {
//	    aggregate.On(r, func(o *Order, e *OrderPlaced) { o.Status = "placed" })
//	}
//
//	func (o *Order) Place() error {
//	    return aggregate.Raise(o, &OrderPlaced{})
//	}
//
// [Raise] resolves the route before recording anything, so an unroutable or
// invalid event leaves the aggregate untouched. Replay goes through the same
// resolution, which keeps command-time and load-time behavior identical.
//
// # Identity
//
// Stream keys are strings; aggregates carry typed IDs. [ResolveID] parses a
// key into string, uuid.UUID, the common integer kinds, any TextUnmarshaler,
// or a type registered with [RegisterIdentity]. [FormatID] is the inverse.
//
// # Entities
//
// Child entities embed [Entity] and are mounted into their parent. The whole
// graph shares one [Stream] handle: child events join the same pending log
// and commit under the same version. Events implementing [EntityTargeted]
// are routed only to the entity with the matching key.
//
// # Repository
//
// [TypedRepository] loads, saves and serializes access per stream:
//
//	reg := aggregate.NewRegistry()
//	aggregate.RegisterSourceEvents[Order](reg)
//
//	repo := aggregate.NewTypedRepository[*Order](log, store, reg)
//	err := repo.WithTransaction(ctx, id, func(o *Order) error {
//	    return o.Place()
//	}, aggregate.WithCreate())
//
// Saves are guarded by optimistic concurrency: a concurrent writer causes
// [ErrStreamConflict] and WithTransaction reloads and retries on a per-key
// lane.
//
// # Mementos
//
// Aggregates opt into snapshotting by implementing [Snapshottable]; there is
// no fallback encoding. A [SnapshotPolicy] (default: [NeverSnapshot]) decides
// after each save whether to capture a new [Memento]. Loading with
// WithSnapshot(true) seeds from the latest memento, verifies its blake2b
// checksum and replays only the events after it:
//
//	repo := aggregate.NewTypedRepository[*Order](log, store, reg,
//	    aggregate.WithSnapshotStore(snaps),
//	    aggregate.WithSnapshotPolicy(aggregate.SnapshotEvery(100)),
//	)
//	o, err := repo.GetByID(ctx, id, aggregate.WithSnapshot(true))
package aggregate
