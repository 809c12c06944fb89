package aggtests

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
	"github.com/GeorGeWzw/aggregates-go/core/aggregate/aggtests/domain"
)

// countingMetrics counts memento cache traffic, everything else is a nop.
type countingMetrics struct {
	aggregate.RepoMetrics

	mu     sync.Mutex
	hits   int
	misses int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{RepoMetrics: aggregate.NopRepoMetrics()}
}

func (m *countingMetrics) MementoHit(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *countingMetrics) MementoMiss(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *countingMetrics) counts() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

func TestRepository_SnapshotPolicy(t *testing.T) {
	var (
		snaps = aggregate.NewMemorySnapshotStore(nil)
		rt    = aggregate.StartTestRuntime(t, orderSources(),
			aggregate.WithSnapshotStore(snaps),
			aggregate.WithRepoOpts(aggregate.WithSnapshotPolicy(aggregate.SnapshotEvery(4))),
		)
		repo = aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt.Repository())
		key  = uuid.NewString()
		sid  = aggregate.NewStreamID("", "order", key)
	)

	o, err := repo.GetOrCreate(t.Context(), key)
	require.NoError(t, err)
	require.NoError(t, o.Place("ada"))
	require.NoError(t, o.AddItem("tea-001", 1, 450))
	require.NoError(t, repo.Save(t.Context(), o))

	// two committed events, below the policy threshold
	_, err = snaps.LoadSnapshot(t.Context(), sid)
	require.ErrorIs(t, err, aggregate.ErrMementoNotFound)

	require.NoError(t, o.AddItem("mug-007", 2, 1200))
	require.NoError(t, o.AdjustQty("tea-001", 3))
	require.NoError(t, repo.Save(t.Context(), o))

	m, err := snaps.LoadSnapshot(t.Context(), sid)
	require.NoError(t, err)
	require.EqualValues(t, 4, m.Version)
	require.EqualValues(t, 4, m.Seq)

	// one more commit stays below the next threshold
	require.NoError(t, o.AdjustQty("mug-007", 5))
	require.NoError(t, repo.Save(t.Context(), o))

	m, err = snaps.LoadSnapshot(t.Context(), sid)
	require.NoError(t, err)
	require.EqualValues(t, 4, m.Version)
}

func TestRepository_LoadWithSnapshot(t *testing.T) {
	var (
		cm = newCountingMetrics()
		rt = aggregate.StartTestRuntime(t, orderSources(),
			aggregate.WithRepoOpts(
				aggregate.WithRepoCacheLRU(8),
				aggregate.WithMetrics(cm),
			),
		)
		repo = aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt.Repository())
		key  = uuid.NewString()
	)

	o, err := repo.GetOrCreate(t.Context(), key)
	require.NoError(t, err)
	require.NoError(t, o.Place("ada"))
	require.NoError(t, o.AddItem("tea-001", 1, 450))
	require.NoError(t, repo.Save(t.Context(), o, aggregate.WithSnapshot(true)))

	// grow the stream past the memento
	require.NoError(t, o.AdjustQty("tea-001", 5))
	require.NoError(t, repo.Save(t.Context(), o))

	loaded, err := repo.GetByID(t.Context(), key, aggregate.WithSnapshot(true))
	require.NoError(t, err)
	require.EqualValues(t, 3, loaded.GetVersion())
	require.Equal(t, 5, loaded.Item("tea-001").Qty)
	require.True(t, loaded.Placed)

	// the memento written on save was served from the cache
	hits, misses := cm.counts()
	require.Equal(t, 1, hits)
	require.Equal(t, 0, misses)

	// loads without the option replay the full stream
	loaded, err = repo.GetByID(t.Context(), key)
	require.NoError(t, err)
	require.EqualValues(t, 3, loaded.GetVersion())
	require.Equal(t, 5, loaded.Item("tea-001").Qty)

	hits, misses = cm.counts()
	require.Equal(t, 1, hits)
	require.Equal(t, 0, misses)
}

func TestRepository_LoadFromMementoAfterCompaction(t *testing.T) {
	snaps := aggregate.NewMemorySnapshotStore(nil)

	// first runtime writes the stream and a memento
	rt1 := aggregate.StartTestRuntime(t, orderSources(), aggregate.WithSnapshotStore(snaps))
	r1 := aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt1.Repository())
	key := uuid.NewString()

	o, err := r1.GetOrCreate(t.Context(), key)
	require.NoError(t, err)
	require.NoError(t, o.Place("ada"))
	require.NoError(t, o.AddItem("tea-001", 2, 450))
	require.NoError(t, r1.Save(t.Context(), o, aggregate.WithSnapshot(true)))

	// second runtime shares the snapshot store but its event store is
	// empty, as after stream compaction
	rt2 := aggregate.StartTestRuntime(t, orderSources(), aggregate.WithSnapshotStore(snaps))
	r2 := aggregate.NewTypedRepositoryFrom[*domain.Order](slog.Default(), rt2.Repository())

	loaded, err := r2.GetByID(t.Context(), key, aggregate.WithSnapshot(true))
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.GetVersion())
	require.Equal(t, 2, loaded.Item("tea-001").Qty)

	// without the memento the stream is simply gone
	_, err = r2.GetByID(t.Context(), key)
	require.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}
