package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
)

// DefaultBucket is the bucket used when a repository is not configured with
// one. Buckets partition streams by tenant or environment.
const DefaultBucket = "default"

// StreamID identifies one event stream: the bucket it lives in, the aggregate
// type and the aggregate key within that type.
type StreamID struct {
	Bucket string `json:"bucket"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

func NewStreamID(bucket, aggType, id string) StreamID {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return StreamID{Bucket: bucket, Type: aggType, ID: id}
}

// Key returns the canonical storage key, "bucket.type.id".
func (s StreamID) Key() string { return fmt.Sprintf("%s.%s.%s", s.Bucket, s.Type, s.ID) }

func (s StreamID) IsZero() bool { return s == StreamID{} }

func (s StreamID) Validate() error {
	if s.Bucket == "" {
		return errors.New("stream bucket is empty")
	}
	if s.Type == "" {
		return errors.New("stream type is empty")
	}
	if s.ID == "" {
		return errors.New("stream id is empty")
	}
	return nil
}

func (s StreamID) SlogAttr() slog.Attr {
	return slog.Group("stream",
		slog.String("bucket", s.Bucket),
		slog.String("type", s.Type),
		slog.String("id", s.ID),
	)
}

// Stream is the live handle an aggregate graph holds on its event stream. The
// root and every mounted child entity share a single *Stream: events raised
// anywhere in the graph land in one pending log and commit against one
// version.
//
// A Stream is not safe for concurrent use. Serialize work per aggregate, for
// example through TypedRepository.WithTransaction.
type Stream struct {
	sid         StreamID
	version     Version // last committed version
	seq         uint64  // store sequence of the last committed event
	pending     []any   // events raised since the last commit
	snapVersion Version // version covered by the latest memento
}

func (s *Stream) StreamID() StreamID       { return s.sid }
func (s *Stream) Version() Version         { return s.version }
func (s *Stream) Seq() uint64              { return s.seq }
func (s *Stream) SnapshotVersion() Version { return s.snapVersion }

// Pending returns a copy of the uncommitted events in raise order.
func (s *Stream) Pending() []any {
	out := make([]any, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *Stream) PendingCount() int { return len(s.pending) }
func (s *Stream) HasPending() bool  { return len(s.pending) > 0 }

func (s *Stream) bind(sid StreamID)       { s.sid = sid }
func (s *Stream) record(event any)        { s.pending = append(s.pending, event) }
func (s *Stream) clearPending()           { s.pending = nil }
func (s *Stream) snapshotTaken(v Version) { s.snapVersion = v }

// advance moves the committed position forward after events were applied or
// appended.
func (s *Stream) advance(v Version, seq uint64) {
	s.version = v
	s.seq = seq
}

// restore positions the stream at the state captured by a memento.
func (s *Stream) restore(v Version, seq uint64) {
	s.version = v
	s.seq = seq
	s.snapVersion = v
}
