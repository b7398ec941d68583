// Package tracker is the client SDK for the readership service: a durable
// pseudonymous visitor identity and a fire-and-forget event emitter.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VisitorIDKey is the storage key holding the visitor id.
const VisitorIDKey = "visitor_id"

// Identity carries the visitor id, the per-load session id and the
// page-load anchor. Create one per client process and share it.
type Identity struct {
	storage Storage
	logger  *slog.Logger

	mu        sync.Mutex
	visitorID string
	persisted bool

	sessionID    string
	pageLoadedAt time.Time
}

// NewIdentity creates an identity over storage. A nil storage runs in
// degraded mode with a non-persisted visitor id.
func NewIdentity(storage Storage, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		storage:      storage,
		logger:       logger,
		sessionID:    newID(),
		pageLoadedAt: time.Now(),
	}
}

// EnsureVisitorID returns the persisted visitor id, creating and storing
// one on first use. When storage is unavailable a fresh id is used for
// the lifetime of this Identity only.
func (i *Identity) EnsureVisitorID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.visitorID != "" {
		return i.visitorID
	}
	if i.storage == nil {
		i.visitorID = newID()
		return i.visitorID
	}

	existing, err := i.storage.Get(VisitorIDKey)
	switch {
	case err == nil && existing != "":
		i.visitorID = existing
		i.persisted = true
		return i.visitorID
	case err != nil && !errors.Is(err, ErrNotFound):
		i.logger.Warn("Visitor storage unavailable, using a page-scoped id", "error", err.Error())
		i.visitorID = newID()
		return i.visitorID
	}

	i.visitorID = newID()
	if err := i.storage.Set(VisitorIDKey, i.visitorID); err != nil {
		i.logger.Warn("Failed to persist visitor id", "error", err.Error())
		return i.visitorID
	}
	i.persisted = true
	return i.visitorID
}

// Persisted reports whether the visitor id is stored durably.
func (i *Identity) Persisted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.persisted
}

// SessionID is the ephemeral id for this Identity's lifetime.
func (i *Identity) SessionID() string { return i.sessionID }

// PageLoadedAt is the anchor used to derive event durations.
func (i *Identity) PageLoadedAt() time.Time { return i.pageLoadedAt }

// sinceLoad returns whole milliseconds elapsed since the anchor.
func (i *Identity) sinceLoad(now time.Time) int64 {
	ms := now.Sub(i.pageLoadedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// newID prefers a random UUID and falls back to a time+random composite.
func newID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return fallbackID(time.Now())
}

func fallbackID(now time.Time) string {
	return fmt.Sprintf("%x-%016x", now.UnixNano(), rand.Uint64())
}
