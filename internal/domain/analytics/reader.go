package analytics

import (
	"fmt"
	"strings"
)

// ReaderType distinguishes pseudonymous guests from registered users.
type ReaderType string

const (
	ReaderGuest      ReaderType = "guest"
	ReaderRegistered ReaderType = "registered"
)

// Valid reports whether t is one of the known reader types.
func (t ReaderType) Valid() bool {
	return t == ReaderGuest || t == ReaderRegistered
}

// Reader identifies who produced an event. A guest is keyed by a visitor
// key, a registered reader by a user id; exactly one of the two is set.
// The zero value is not a valid reader.
type Reader struct {
	kind ReaderType
	id   string
}

// Guest builds a reader keyed by a pseudonymous visitor key.
func Guest(visitorKey string) (Reader, error) {
	visitorKey = strings.TrimSpace(visitorKey)
	if visitorKey == "" {
		return Reader{}, fmt.Errorf("%w: guest reader requires a visitor key", ErrInvalidReader)
	}
	return Reader{kind: ReaderGuest, id: visitorKey}, nil
}

// Registered builds a reader keyed by an authenticated user id.
func Registered(userID string) (Reader, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Reader{}, fmt.Errorf("%w: registered reader requires a user id", ErrInvalidReader)
	}
	return Reader{kind: ReaderRegistered, id: userID}, nil
}

// NewReader validates the wire/storage shape (type plus two optional ids)
// and converts it to a Reader. The id that does not belong to the type must
// be empty.
func NewReader(readerType ReaderType, userID, visitorKey string) (Reader, error) {
	switch readerType {
	case ReaderGuest:
		if strings.TrimSpace(userID) != "" {
			return Reader{}, fmt.Errorf("%w: guest reader must not carry a user id", ErrInvalidReader)
		}
		return Guest(visitorKey)
	case ReaderRegistered:
		if strings.TrimSpace(visitorKey) != "" {
			return Reader{}, fmt.Errorf("%w: registered reader must not carry a visitor key", ErrInvalidReader)
		}
		return Registered(userID)
	default:
		return Reader{}, fmt.Errorf("%w: unknown reader type %q", ErrInvalidReader, readerType)
	}
}

func (r Reader) Type() ReaderType { return r.kind }

// IsZero reports whether r was never constructed.
func (r Reader) IsZero() bool { return r.kind == "" }

// UserID returns the user id for registered readers and "" for guests.
func (r Reader) UserID() string {
	if r.kind == ReaderRegistered {
		return r.id
	}
	return ""
}

// VisitorKey returns the visitor key for guests and "" for registered readers.
func (r Reader) VisitorKey() string {
	if r.kind == ReaderGuest {
		return r.id
	}
	return ""
}

// Key is a stable distinct-reader key, namespaced by type so a user id can
// never collide with a visitor key.
func (r Reader) Key() string {
	if r.IsZero() {
		return ""
	}
	return string(r.kind) + ":" + r.id
}

func (r Reader) String() string { return r.Key() }
