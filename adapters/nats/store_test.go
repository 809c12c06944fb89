package nats

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
)

func testEnvelope(sid aggregate.StreamID, v aggregate.Version) aggregate.Envelope {
	return aggregate.Envelope{
		ID:            gonanoid.Must(),
		Version:       v,
		Bucket:        sid.Bucket,
		AggregateType: sid.Type,
		AggregateID:   sid.ID,
		Type:          "test.event",
		OccurredAt:    time.Now(),
		Data:          []byte(fmt.Sprintf(`{"v":%d}`, v)),
	}
}

func TestEventStore(t *testing.T) {
	connect := NewTestContainer(t)
	sut, err := NewEventStore(EventStoreConfig{
		Connect: connect,
		Log:     slog.Default(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sut.Close() })

	sid := aggregate.NewStreamID("", "test", "agg-1")

	t.Run("stream config", func(t *testing.T) {
		si, err := sut.stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, defaultStreamName, si.Config.Name)
		require.Equal(t, []string{defaultSubjectPrefix + ".>"}, si.Config.Subjects)
	})

	t.Run("load unknown stream", func(t *testing.T) {
		_, err := sut.Load(t.Context(), sid)
		require.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
	})

	t.Run("append and load", func(t *testing.T) {
		res, err := sut.Append(t.Context(), sid, 0, []aggregate.Envelope{
			testEnvelope(sid, 1),
			testEnvelope(sid, 2),
			testEnvelope(sid, 3),
		})
		require.NoError(t, err)
		require.EqualValues(t, 3, res.LastSeq)

		envs, err := sut.Load(t.Context(), sid)
		require.NoError(t, err)
		require.Len(t, envs, 3)
		for i, env := range envs {
			require.Equal(t, aggregate.Version(i+1), env.Version)
			require.NotZero(t, env.Seq)
			require.Equal(t, sid, env.StreamID())
		}
	})

	t.Run("load from version", func(t *testing.T) {
		envs, err := sut.Load(t.Context(), sid,
			aggregate.WithStartAtVersion(3),
			aggregate.WithStartAtSeq(3),
		)
		require.NoError(t, err)
		require.Len(t, envs, 1)
		require.Equal(t, aggregate.Version(3), envs[0].Version)
	})

	t.Run("load past the tail", func(t *testing.T) {
		envs, err := sut.Load(t.Context(), sid,
			aggregate.WithStartAtVersion(4),
			aggregate.WithStartAtSeq(4),
		)
		require.NoError(t, err)
		require.Empty(t, envs)
	})

	t.Run("conflict on stale version", func(t *testing.T) {
		_, err := sut.Append(t.Context(), sid, 1, []aggregate.Envelope{testEnvelope(sid, 2)})
		require.ErrorIs(t, err, aggregate.ErrStreamConflict)
	})

	t.Run("append continues", func(t *testing.T) {
		res, err := sut.Append(t.Context(), sid, 3, []aggregate.Envelope{testEnvelope(sid, 4)})
		require.NoError(t, err)
		require.EqualValues(t, 4, res.LastSeq)
	})

	t.Run("streams do not interfere", func(t *testing.T) {
		other := aggregate.NewStreamID("", "test", "agg-2")
		_, err := sut.Append(t.Context(), other, 0, []aggregate.Envelope{testEnvelope(other, 1)})
		require.NoError(t, err)

		envs, err := sut.Load(t.Context(), other)
		require.NoError(t, err)
		require.Len(t, envs, 1)

		envs, err = sut.Load(t.Context(), sid)
		require.NoError(t, err)
		require.Len(t, envs, 4)
	})

	t.Run("no dangling consumers", func(t *testing.T) {
		names := sut.stream.ConsumerNames(t.Context())
		all := make([]string, 0)
		for n := range names.Name() {
			all = append(all, n)
		}
		require.NoError(t, names.Err())
		require.Empty(t, all)
	})
}

func TestEventStore_StaleWriter(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	newStore := func() *EventStore {
		s, err := NewEventStore(EventStoreConfig{Connect: connect, Log: slog.Default()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	var (
		a   = newStore()
		b   = newStore()
		sid = aggregate.NewStreamID("", "test", "racy")
	)

	_, err := a.Append(t.Context(), sid, 0, []aggregate.Envelope{testEnvelope(sid, 1)})
	require.NoError(t, err)

	// both observed version 1; the writer that lands second must lose
	_, err = a.Append(t.Context(), sid, 1, []aggregate.Envelope{testEnvelope(sid, 2)})
	require.NoError(t, err)
	_, err = b.Append(t.Context(), sid, 1, []aggregate.Envelope{testEnvelope(sid, 2)})
	require.ErrorIs(t, err, aggregate.ErrStreamConflict)

	envs, err := a.Load(t.Context(), sid)
	require.NoError(t, err)
	require.Len(t, envs, 2)
}
