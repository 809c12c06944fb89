package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Envelope is the stored form of a single event. Version is the stream
// version after the event is applied; Seq is the store-wide sequence assigned
// on append.
type Envelope struct {
	ID            string          `json:"id"`
	Seq           uint64          `json:"seq"`
	Version       Version         `json:"version"`
	Bucket        string          `json:"bucket"`
	AggregateType string          `json:"aggregate"`
	AggregateID   string          `json:"aggregate_id"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func (e Envelope) StreamID() StreamID {
	return StreamID{Bucket: e.Bucket, Type: e.AggregateType, ID: e.AggregateID}
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("envelope id is empty")
	}
	if e.Type == "" {
		return errors.New("envelope type is empty")
	}
	if e.Version == 0 {
		return errors.New("envelope version is zero")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("envelope occurred_at is zero")
	}
	if err := e.StreamID().Validate(); err != nil {
		return fmt.Errorf("envelope stream: %w", err)
	}
	return nil
}

func (e Envelope) SlogAttr() slog.Attr {
	return slog.Group("event",
		slog.String("id", e.ID),
		slog.String("type", e.Type),
		slog.Uint64("seq", e.Seq),
		e.Version.SlogAttr(),
	)
}

// Decoder turns stored envelopes back into typed events. *Registry is the
// concrete implementation.
type Decoder interface {
	Decode(env Envelope) (any, error)
}
