package aggregate

import (
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// ErrUnresolvedIdentity is returned when a stream key cannot be turned into
// the aggregate's typed ID: the type is neither built in, registered via
// RegisterIdentity, nor a TextUnmarshaler.
var ErrUnresolvedIdentity = errors.New("unresolved identity type")

var (
	identityMu sync.RWMutex
	parsers    = map[reflect.Type]func(string) (any, error){}
	formatters = map[reflect.Type]func(any) string{}
)

// RegisterIdentity teaches the resolver a custom aggregate ID type. parse
// turns a stream key into the ID, format turns it back; a nil format falls
// back to FormatID's defaults. Registration replaces any previous entry for
// the same type and is typically done from an init func.
func RegisterIdentity[TID comparable](parse func(string) (TID, error), format func(TID) string) {
	t := reflect.TypeFor[TID]()
	identityMu.Lock()
	defer identityMu.Unlock()
	if parse != nil {
		parsers[t] = func(s string) (any, error) { return parse(s) }
	}
	if format != nil {
		formatters[t] = func(v any) string { return format(v.(TID)) }
	}
}

// ResolveID converts a stream key into the typed aggregate ID TID.
//
// Resolution order: an identity registered via RegisterIdentity, then the
// built-in types (string, uuid.UUID and the common integer kinds), then any
// TID whose pointer implements encoding.TextUnmarshaler. Anything else fails
// with ErrUnresolvedIdentity; a key the type cannot parse fails with the
// parse error.
func ResolveID[TID comparable](key string) (TID, error) {
	var zero TID

	identityMu.RLock()
	parse, ok := parsers[reflect.TypeFor[TID]()]
	identityMu.RUnlock()
	if ok {
		v, err := parse(key)
		if err != nil {
			return zero, fmt.Errorf("parse %T from %q: %w", zero, key, err)
		}
		return v.(TID), nil
	}

	switch any(zero).(type) {
	case string:
		return any(key).(TID), nil
	case uuid.UUID:
		u, err := uuid.Parse(key)
		if err != nil {
			return zero, fmt.Errorf("parse uuid from %q: %w", key, err)
		}
		return any(u).(TID), nil
	case int:
		n, err := strconv.Atoi(key)
		if err != nil {
			return zero, fmt.Errorf("parse int from %q: %w", key, err)
		}
		return any(n).(TID), nil
	case int32:
		n, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return zero, fmt.Errorf("parse int32 from %q: %w", key, err)
		}
		return any(int32(n)).(TID), nil
	case int64:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("parse int64 from %q: %w", key, err)
		}
		return any(n).(TID), nil
	case uint:
		n, err := strconv.ParseUint(key, 10, strconv.IntSize)
		if err != nil {
			return zero, fmt.Errorf("parse uint from %q: %w", key, err)
		}
		return any(uint(n)).(TID), nil
	case uint64:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("parse uint64 from %q: %w", key, err)
		}
		return any(n).(TID), nil
	}

	if tu, ok := any(&zero).(encoding.TextUnmarshaler); ok {
		if err := tu.UnmarshalText([]byte(key)); err != nil {
			return zero, fmt.Errorf("unmarshal %T from %q: %w", zero, key, err)
		}
		return zero, nil
	}

	return zero, fmt.Errorf("%w: %T", ErrUnresolvedIdentity, zero)
}

// ResolveIDOrZero is the lenient variant of ResolveID: any failure is logged
// as a warning and the zero value returned. Use it on read paths that must
// not fail on malformed legacy keys.
func ResolveIDOrZero[TID comparable](key string) TID {
	v, err := ResolveID[TID](key)
	if err != nil {
		slog.Warn("identity resolution failed, using zero value",
			slog.String("key", key),
			slog.String("id_type", fmt.Sprintf("%T", v)),
			slog.Any("error", err),
		)
	}
	return v
}

// FormatID turns a typed aggregate ID back into its stream key. The inverse
// of ResolveID for the built-in and registered types.
func FormatID[TID comparable](id TID) string {
	identityMu.RLock()
	format, ok := formatters[reflect.TypeFor[TID]()]
	identityMu.RUnlock()
	if ok {
		return format(any(id))
	}

	switch v := any(id).(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case encoding.TextMarshaler:
		if text, err := v.MarshalText(); err == nil {
			return string(text)
		}
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", id)
}
