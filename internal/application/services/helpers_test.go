package services

import (
	"testing"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// testClock is a settable time source.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testDeps() (*logging.ChanneledLogger, *performance.Tracker) {
	return logging.NewDiscardLogger(), performance.NewTracker(nil, nil)
}

func guest(t *testing.T, key string) analytics.Reader {
	t.Helper()
	r, err := analytics.Guest(key)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func registered(t *testing.T, id string) analytics.Reader {
	t.Helper()
	r, err := analytics.Registered(id)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func ptr[T any](v T) *T { return &v }
