package aggregate

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrSnapshotStoreUnconfigured is returned when a memento operation runs
	// against a repository that has no SnapshotStore.
	ErrSnapshotStoreUnconfigured = errors.New("no snapshot store configured")
	// ErrMementoNotFound is returned when a stream has no stored memento.
	ErrMementoNotFound = errors.New("memento not found")
	// ErrNotSnapshottable is returned when a memento is explicitly requested
	// for an aggregate that does not implement Snapshottable. There is no
	// implicit fallback encoding.
	ErrNotSnapshottable = errors.New("aggregate is not snapshottable")
	// ErrMementoChecksum is returned when a stored memento fails its
	// integrity check and must not be restored.
	ErrMementoChecksum = errors.New("memento checksum mismatch")
)

// Snapshottable is the capability that opts an aggregate into mementos.
// Snapshot captures the full graph state (the root is responsible for its
// entities); RestoreSnapshot is its inverse.
type Snapshottable interface {
	Snapshot() ([]byte, error)
	RestoreSnapshot(data []byte) error
}

// Memento is a point-in-time capture of aggregate state: the opaque payload
// the aggregate produced plus the stream position it covers. Restoring a
// memento and replaying events after Version yields the same state as a full
// replay.
type Memento struct {
	MementoID     string    `json:"memento_id"`
	Stream        StreamID  `json:"stream"`
	Version       Version   `json:"version"`
	Seq           uint64    `json:"seq"`
	TakenAt       time.Time `json:"taken_at"`
	SchemaVersion int       `json:"schema_version"`
	Encoding      string    `json:"encoding"`
	Checksum      string    `json:"checksum"`
	Data          []byte    `json:"data"`
}

func (m *Memento) SlogAttr() slog.Attr {
	return slog.Group("memento",
		slog.String("id", m.MementoID),
		slog.String("stream", m.Stream.Key()),
		m.Version.SlogAttr(),
		slog.Uint64("seq", m.Seq),
		slog.Int("size", len(m.Data)),
	)
}

// mementoChecksum is the hex blake2b-256 digest of the payload.
func mementoChecksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TakeMemento captures root's current state into a fresh memento. The root
// must implement Snapshottable and have no pending events, so the memento
// marks a committed position.
func TakeMemento(root Root) (*Memento, error) {
	s, ok := any(root).(Snapshottable)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotSnapshottable, root)
	}
	stream := root.EventStream()
	if stream.HasPending() {
		return nil, fmt.Errorf("take memento of %s: stream has pending events", stream.StreamID().Key())
	}
	data, err := s.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("take memento: %w", err)
	}
	return &Memento{
		MementoID:     gonanoid.Must(),
		Stream:        stream.StreamID(),
		Version:       stream.Version(),
		Seq:           stream.Seq(),
		TakenAt:       time.Now(),
		SchemaVersion: 1,
		Encoding:      "json",
		Checksum:      mementoChecksum(data),
		Data:          data,
	}, nil
}

// RestoreMemento verifies m's checksum and loads it into root, positioning
// the stream at the memento's version and sequence. It must run on a fresh
// aggregate, before any replay; events after the memento's position are
// replayed on top by the repository.
func RestoreMemento(root Root, m *Memento) error {
	s, ok := any(root).(Snapshottable)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSnapshottable, root)
	}
	stream := root.EventStream()
	if stream.Version() != 0 || stream.HasPending() {
		return fmt.Errorf("restore memento of %s: stream already advanced", m.Stream.Key())
	}
	if sid := stream.StreamID(); !sid.IsZero() && sid != m.Stream {
		return fmt.Errorf("restore memento: memento of %s does not fit stream %s", m.Stream.Key(), sid.Key())
	}
	if got := mementoChecksum(m.Data); got != m.Checksum {
		return fmt.Errorf("%w: stream %s", ErrMementoChecksum, m.Stream.Key())
	}
	if err := s.RestoreSnapshot(m.Data); err != nil {
		return fmt.Errorf("restore memento: %w", err)
	}
	stream.restore(m.Version, m.Seq)
	return nil
}

// SnapshotPolicy decides after each commit whether a fresh memento should be
// taken. It is only consulted for aggregates that implement Snapshottable.
type SnapshotPolicy interface {
	// ShouldSnapshot gets the version covered by the last memento (zero when
	// none exists) and the stream version after the commit.
	ShouldSnapshot(lastSnapshot, current Version) bool
}

// NeverSnapshot is the default policy: mementos happen only on explicit
// request.
type NeverSnapshot struct{}

func (NeverSnapshot) ShouldSnapshot(Version, Version) bool { return false }

// SnapshotEvery takes a memento once at least n events accumulated since the
// last one. SnapshotEvery(0) never snapshots.
type SnapshotEvery uint64

func (n SnapshotEvery) ShouldSnapshot(lastSnapshot, current Version) bool {
	if n == 0 {
		return false
	}
	return current >= lastSnapshot+Version(n)
}

// SnapshotStore persists mementos, keeping the latest per stream.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, m *Memento) error
	LoadSnapshot(ctx context.Context, sid StreamID) (*Memento, error)
}

// MemorySnapshotStore keeps the latest memento per stream in memory. Meant
// for tests and development.
type MemorySnapshotStore struct {
	mu       sync.Mutex
	log      *slog.Logger
	mementos map[string]*Memento
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

func NewMemorySnapshotStore(log *slog.Logger) *MemorySnapshotStore {
	if log == nil {
		log = slog.Default()
	}
	return &MemorySnapshotStore{
		log:      log.With(slog.String("snapshot_store", "memory")),
		mementos: map[string]*Memento{},
	}
}

func (s *MemorySnapshotStore) SaveSnapshot(_ context.Context, m *Memento) error {
	if err := m.Stream.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mementos[m.Stream.Key()] = m
	s.log.Debug("memento saved", m.SlogAttr())
	return nil
}

func (s *MemorySnapshotStore) LoadSnapshot(_ context.Context, sid StreamID) (*Memento, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mementos[sid.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMementoNotFound, sid.Key())
	}
	return m, nil
}
