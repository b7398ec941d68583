package tracker

import "sync"

// OneShot suppresses repeated telemetry for a condition that is observed
// on every render. It fires on the first true observation and re-arms only
// after the condition has been observed false.
type OneShot struct {
	mu    sync.Mutex
	fired bool
}

// Observe records the current condition and reports whether to emit.
func (g *OneShot) Observe(condition bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !condition {
		g.fired = false
		return false
	}
	if g.fired {
		return false
	}
	g.fired = true
	return true
}

// Reset re-arms the guard.
func (g *OneShot) Reset() {
	g.mu.Lock()
	g.fired = false
	g.mu.Unlock()
}
