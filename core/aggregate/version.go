package aggregate

import "log/slog"

// Version is the per-stream version of an aggregate. It starts at 1 for the
// first committed event and increases by one per event. An Envelope carries
// the version the stream has after its event is applied, so replaying
// envelopes 1..n leaves the stream at version n.
//
// Version drives optimistic concurrency: Append fails with ErrStreamConflict
// when the expected version no longer matches the stream.
type Version uint64

// Next is the version after one more event.
func (v Version) Next() Version { return v + 1 }

func (v Version) Uint64() uint64 { return uint64(v) }

// SlogAttr logs the version under the "version" key.
func (v Version) SlogAttr() slog.Attr { return v.SlogAttrWithKey("version") }

// SlogAttrWithKey logs the version under a caller-chosen key.
func (v Version) SlogAttrWithKey(key string) slog.Attr {
	return slog.Uint64(key, uint64(v))
}
