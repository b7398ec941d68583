package tracker

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var errStorageDown = errors.New("storage down")

type failingStorage struct {
	getErr error
	setErr error
	sets   int
}

func (s *failingStorage) Get(string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return "", ErrNotFound
}

func (s *failingStorage) Set(string, string) error {
	s.sets++
	return s.setErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureVisitorIDIsStable(t *testing.T) {
	storage := NewMemoryStorage()
	identity := NewIdentity(storage, discardLogger())

	first := identity.EnsureVisitorID()
	if first == "" {
		t.Fatal("expected a visitor id")
	}
	if second := identity.EnsureVisitorID(); second != first {
		t.Fatalf("visitor id changed: %q then %q", first, second)
	}
	if !identity.Persisted() {
		t.Error("expected id to be persisted")
	}

	stored, err := storage.Get(VisitorIDKey)
	if err != nil || stored != first {
		t.Fatalf("stored = %q, %v; want %q", stored, err, first)
	}

	// A second identity over the same storage sees the same visitor.
	other := NewIdentity(storage, discardLogger())
	if got := other.EnsureVisitorID(); got != first {
		t.Errorf("other identity visitor = %q, want %q", got, first)
	}
	if other.SessionID() == identity.SessionID() {
		t.Error("session ids should differ per identity")
	}
}

func TestEnsureVisitorIDDegrades(t *testing.T) {
	tests := []struct {
		name    string
		storage Storage
	}{
		{"nil storage", nil},
		{"read failure", &failingStorage{getErr: errStorageDown}},
		{"write failure", &failingStorage{setErr: errStorageDown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := NewIdentity(tt.storage, discardLogger())
			id := identity.EnsureVisitorID()
			if id == "" {
				t.Fatal("expected a page-scoped visitor id")
			}
			if identity.EnsureVisitorID() != id {
				t.Error("page-scoped id must be stable for the identity lifetime")
			}
			if identity.Persisted() {
				t.Error("degraded id must not report as persisted")
			}
		})
	}
}

func TestBadgerStorageSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	storage, err := OpenBadgerStorage(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := storage.Get(VisitorIDKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	first := NewIdentity(storage, discardLogger()).EnsureVisitorID()
	if err := storage.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenBadgerStorage(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	identity := NewIdentity(reopened, discardLogger())
	if got := identity.EnsureVisitorID(); got != first {
		t.Errorf("visitor id after reopen = %q, want %q", got, first)
	}
	if !identity.Persisted() {
		t.Error("expected persisted identity after reopen")
	}
}

func TestFallbackID(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	a := fallbackID(now)
	b := fallbackID(now)
	if a == b {
		t.Errorf("fallback ids should differ, both %q", a)
	}
	if !strings.Contains(a, "-") {
		t.Errorf("unexpected fallback id shape %q", a)
	}
}

func TestSinceLoadNeverNegative(t *testing.T) {
	identity := NewIdentity(nil, discardLogger())
	loaded := identity.PageLoadedAt()

	if got := identity.sinceLoad(loaded.Add(-time.Second)); got != 0 {
		t.Errorf("sinceLoad before anchor = %d, want 0", got)
	}
	if got := identity.sinceLoad(loaded.Add(1500 * time.Millisecond)); got != 1500 {
		t.Errorf("sinceLoad = %d, want 1500", got)
	}
}
