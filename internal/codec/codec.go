// Package codec abstracts payload encoding for envelopes and mementos.
package codec

import jsoniter "github.com/json-iterator/go"

// Codec encodes and decodes payloads. Implementations must be safe for
// concurrent use.
type Codec interface {
	// Name identifies the wire encoding, e.g. "json".
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var js = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec encodes payloads as compact JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string                    { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)   { return js.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return js.Unmarshal(b, v) }

// Default returns the codec used when none is configured.
func Default() Codec { return JSONCodec{} }

var _ Codec = JSONCodec{}
