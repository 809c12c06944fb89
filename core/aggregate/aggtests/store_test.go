package aggtests

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/GeorGeWzw/aggregates-go/adapters/nats"
	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
	"github.com/GeorGeWzw/aggregates-go/core/aggregate/aggtests/domain"
)

// A storeCombo pairs an event store with a snapshot store. Construction is
// deferred into the subtest so the memory-only combination never starts a
// container.
type storeCombo struct {
	events    aggregate.EventStore
	snapshots aggregate.SnapshotStore
}

var storeCombos = []struct {
	name  string
	build func(t *testing.T) storeCombo
}{
	{
		name: "memory",
		build: func(t *testing.T) storeCombo {
			return storeCombo{
				events:    aggregate.NewMemoryStore(),
				snapshots: aggregate.NewMemorySnapshotStore(nil),
			}
		},
	},
	{
		name: "jetstream",
		build: func(t *testing.T) storeCombo {
			connect := nats.NewTestContainer(t)
			events, err := nats.NewEventStore(nats.EventStoreConfig{
				Log:     slog.Default(),
				Connect: connect,
			})
			require.NoError(t, err)

			snapshots, err := nats.NewSnapshotStore(nats.KVConfig{
				Connect: connect,
				Bucket:  "order-mementos",
			})
			require.NoError(t, err)

			return storeCombo{events: events, snapshots: snapshots}
		},
	},
	{
		name: "jetstream events, memory snapshots",
		build: func(t *testing.T) storeCombo {
			events, err := nats.NewEventStore(nats.EventStoreConfig{
				Log:     slog.Default(),
				Connect: nats.NewTestContainer(t),
			})
			require.NoError(t, err)

			return storeCombo{
				events:    events,
				snapshots: aggregate.NewMemorySnapshotStore(nil),
			}
		},
	},
}

// runtimeStarter boots a fresh runtime wired to one backend combination.
// Extra options land after the store wiring, so callers can override any
// default.
type runtimeStarter func(opts ...aggregate.RuntimeOption) *aggregate.TestRuntime

// forEachCombo runs fn once per backend combination, each as a subtest.
func forEachCombo(t *testing.T, fn func(t *testing.T, start runtimeStarter)) {
	for _, tc := range storeCombos {
		t.Run(tc.name, func(t *testing.T) {
			combo := tc.build(t)
			fn(t, func(opts ...aggregate.RuntimeOption) *aggregate.TestRuntime {
				return aggregate.StartTestRuntime(t,
					aggregate.WithStore(combo.events),
					aggregate.WithSnapshotStore(combo.snapshots),
					orderSources(),
					aggregate.WithRuntimeOpts(opts...),
				)
			})
		})
	}
}

// testEnvelope builds a minimal valid envelope for sid at the given version.
func testEnvelope(sid aggregate.StreamID, version aggregate.Version) aggregate.Envelope {
	return aggregate.Envelope{
		ID:            gonanoid.Must(),
		Version:       version,
		Bucket:        sid.Bucket,
		AggregateType: sid.Type,
		AggregateID:   sid.ID,
		Type:          "order.test",
		OccurredAt:    time.Now(),
	}
}

func TestStores_Append(t *testing.T) {
	forEachCombo(t, func(t *testing.T, start runtimeStarter) {
		sut := start().Store()
		sid := aggregate.NewStreamID("", "order", uuid.NewString())

		res, err := sut.Append(t.Context(), sid, 0, []aggregate.Envelope{
			testEnvelope(sid, 1),
			testEnvelope(sid, 2),
		})
		require.NoError(t, err)
		require.EqualValues(t, 2, res.LastSeq)

		t.Run("rejects foreign envelopes", func(t *testing.T) {
			bad := testEnvelope(sid, 3)
			bad.AggregateID = "someone-else"
			_, err := sut.Append(t.Context(), sid, 2, []aggregate.Envelope{bad})
			require.Error(t, err)
		})

		t.Run("stale writer conflicts", func(t *testing.T) {
			_, err := sut.Append(t.Context(), sid, 0, []aggregate.Envelope{testEnvelope(sid, 1)})
			require.ErrorIs(t, err, aggregate.ErrStreamConflict)
		})

		t.Run("empty append is an error", func(t *testing.T) {
			_, err := sut.Append(t.Context(), sid, 2, nil)
			require.ErrorIs(t, err, aggregate.ErrNoEvents)
		})
	})
}

func TestStores_SaveAndReload(t *testing.T) {
	forEachCombo(t, func(t *testing.T, start runtimeStarter) {
		rt := start()
		id := uuid.New()

		o := domain.NewOrder(id)
		require.Equal(t, id, o.GetID())
		require.EqualValues(t, 0, o.GetVersion())

		require.NoError(t, o.Place("ada"))
		require.NoError(t, o.AddItem("tea-001", 2, 450))
		require.NoError(t, rt.Repository().Save(t.Context(), o))
		require.EqualValues(t, 2, o.GetVersion())

		loaded := domain.NewOrder(id)
		require.NoError(t, rt.Repository().Load(t.Context(), loaded))
		require.EqualValues(t, 2, loaded.GetVersion())
		require.Equal(t, "ada", loaded.Customer)
		require.EqualValues(t, 900, loaded.TotalCents())

		// the raw stream carries both events, stamped with store sequences
		sid := aggregate.NewStreamID("", o.GetAggType(), o.GetStreamID())
		envs, err := rt.Store().Load(t.Context(), sid)
		require.NoError(t, err)
		require.Len(t, envs, 2)
		require.NotEmpty(t, envs[0].ID)
		require.NotZero(t, envs[0].Seq)
		require.EqualValues(t, 1, envs[0].Version)
		require.Equal(t, "order", envs[0].AggregateType)
	})
}

func TestStores_MementoRoundTrip(t *testing.T) {
	forEachCombo(t, func(t *testing.T, start runtimeStarter) {
		var (
			rt   = start()
			repo = aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt.Repository())
			key  = uuid.NewString()
			sid  = aggregate.NewStreamID("", "order", key)
		)

		o, err := repo.GetOrCreate(t.Context(), key)
		require.NoError(t, err)
		require.Equal(t, key, o.GetStreamID())
		require.NoError(t, o.Place("ada"))
		require.NoError(t, o.AddItem("tea-001", 1, 450))
		require.NoError(t, repo.Save(t.Context(), o, aggregate.WithSnapshot(true)))
		require.EqualValues(t, 2, o.GetVersion())

		t.Run("memento is stored", func(t *testing.T) {
			m, err := rt.SnapshotStore().LoadSnapshot(t.Context(), sid)
			require.NoError(t, err)
			require.NotNil(t, m)
			require.NotEmpty(t, m.MementoID)
			require.Equal(t, sid, m.Stream)
			require.EqualValues(t, 2, m.Version)
			require.EqualValues(t, 2, m.Seq)
		})

		t.Run("restore rebuilds state without events", func(t *testing.T) {
			m, err := rt.SnapshotStore().LoadSnapshot(t.Context(), sid)
			require.NoError(t, err)

			fresh, err := repo.NewWithID(key)
			require.NoError(t, err)
			require.NoError(t, aggregate.RestoreMemento(fresh, m))
			require.EqualValues(t, 2, fresh.GetVersion())
			require.EqualValues(t, 2, fresh.GetSeq())
			require.True(t, fresh.Placed)
			require.Len(t, fresh.Items, 1)
		})

		t.Run("load prefers the memento", func(t *testing.T) {
			loaded, err := repo.GetByID(t.Context(), key, aggregate.WithSnapshot(true))
			require.NoError(t, err)
			require.EqualValues(t, 2, loaded.GetVersion())
			require.Equal(t, 1, loaded.Item("tea-001").Qty)
		})
	})
}

func TestStores_LongStream(t *testing.T) {
	forEachCombo(t, func(t *testing.T, start runtimeStarter) {
		var (
			n    = 2_000
			key  = uuid.NewString()
			rt   = start()
			repo = aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt.Repository())
		)

		o, err := repo.GetOrCreate(t.Context(), key)
		require.NoError(t, err)
		require.NoError(t, o.Place("ada"))
		require.NoError(t, o.AddItem("tea-001", 1, 450))

		version := 2
		for i := 0; i < n; i++ {
			require.NoError(t, o.AdjustQty("tea-001", i+2))
			version++

			// persist on a mixed cadence, sometimes with a memento
			switch {
			case i > 0 && i%500 == 0:
				require.NoError(t, repo.Save(t.Context(), o, aggregate.WithSnapshot(true)))
				require.EqualValues(t, version, o.GetVersion())
			case i > 0 && i%100 == 0:
				require.NoError(t, repo.Save(t.Context(), o))
				require.EqualValues(t, version, o.GetVersion())
			}
		}

		require.NoError(t, repo.Save(t.Context(), o))
		require.EqualValues(t, version, o.GetVersion())

		started := time.Now()
		loaded, err := repo.GetByID(t.Context(), key, aggregate.WithSnapshot(true))
		require.NoError(t, err)
		t.Logf("reload of %d events took %s", version, time.Since(started))

		require.Equal(t, n+1, loaded.Item("tea-001").Qty)
		require.EqualValues(t, o.GetVersion(), loaded.GetVersion())
		require.Equal(t, o.GetSeq(), loaded.GetSeq())
	})
}
