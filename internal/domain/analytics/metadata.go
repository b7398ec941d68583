package analytics

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// Limits applied to every metadata map before it is stored.
const (
	MaxMetadataKeys        = 32
	MaxMetadataKeyLength   = 64
	MaxMetadataValueLength = 1024
)

// Well-known metadata keys. The set is open: callers may add their own keys
// as long as the values stay primitive.
const (
	MetaSurface   = "surface"    // UI surface that produced the event
	MetaAction    = "action"     // action taken on that surface
	MetaQuery     = "query"      // search/filter input shown with an empty state
	MetaReason    = "reason"     // why an empty or error state was shown
	MetaTarget    = "target"     // click-through destination
	MetaPosition  = "position"   // list position of a clicked item
	MetaReferrer  = "referrer"   // document referrer at event time
	MetaViewport  = "viewport"   // viewport class, e.g. "mobile"
	MetaErrorCode = "errorCode"  // error identifier for error states
	MetaProgress  = "progress"   // progress percent carried by heartbeat events
	MetaVisitor   = "visitorKey" // guest visitor id on engagement events
)

// Metadata is a bounded map of primitive values attached to an event.
// Allowed values are strings, booleans, finite numbers and nil.
type Metadata map[string]any

// ShareMetadata builds the metadata recorded with a share event.
func ShareMetadata(surface, action string) Metadata {
	m := Metadata{}
	if surface != "" {
		m[MetaSurface] = surface
	}
	if action != "" {
		m[MetaAction] = action
	}
	return m
}

// EmptyStateMetadata builds the metadata recorded when a surface showed
// nothing (or an error) to the reader.
func EmptyStateMetadata(surface, reason, query string) Metadata {
	m := Metadata{MetaSurface: surface}
	if reason != "" {
		m[MetaReason] = reason
	}
	if query != "" {
		m[MetaQuery] = query
	}
	return m
}

// Validate checks the map against the size and type limits.
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d keys exceeds limit of %d", ErrMetadataSerialization, len(m), MaxMetadataKeys)
	}
	for key, value := range m {
		if key == "" || len(key) > MaxMetadataKeyLength {
			return fmt.Errorf("%w: invalid key %q", ErrMetadataSerialization, key)
		}
		if err := validatePrimitive(value); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrMetadataSerialization, key, err)
		}
	}
	return nil
}

func validatePrimitive(value any) error {
	switch v := value.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case string:
		if len(v) > MaxMetadataValueLength {
			return fmt.Errorf("string value longer than %d bytes", MaxMetadataValueLength)
		}
		return nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("non-finite number")
		}
		return nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite number")
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
}

// Encode validates and serializes the map. An empty map encodes to "".
func (m Metadata) Encode() (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	if err := m.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetadataSerialization, err)
	}
	return string(raw), nil
}

// DecodeMetadata parses a stored metadata document. Empty input yields nil.
func DecodeMetadata(raw string) (Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataSerialization, err)
	}
	return m, nil
}
