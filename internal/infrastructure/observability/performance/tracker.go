// Package performance tracks operation timings for the request paths and
// raises alerts when an operation exceeds its threshold.
package performance

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers int // completed markers retained for stats
	MaxAlerts  int

	// Thresholds maps an operation prefix (the part before ':') to the
	// duration above which a warning alert is raised. Critical is 4x that.
	Thresholds       map[string]time.Duration
	DefaultThreshold time.Duration
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers: 1000,
		MaxAlerts:  100,
		Thresholds: map[string]time.Duration{
			"sessions":  100 * time.Millisecond,
			"tracking":  100 * time.Millisecond,
			"analytics": time.Second,
		},
		DefaultThreshold: 500 * time.Millisecond,
	}
}

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	mu        sync.Mutex
	completed []Marker
	next      int
	alerts    []PerformanceAlert
	active    int
	config    *TrackerConfig
	logger    *slog.Logger
	started   time.Time
}

// NewTracker creates a new performance tracker. A nil logger disables alert logging.
func NewTracker(config *TrackerConfig, logger *slog.Logger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		config:  config,
		logger:  logger,
		started: time.Now(),
	}
}

// StartOperation creates a marker. Callers must call Complete on it.
func (t *Tracker) StartOperation(operation string) *Marker {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	return &Marker{
		Operation:  operation,
		StartTime:  time.Now(),
		Success:    true,
		onComplete: t.record,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active--
	snapshot := *m
	snapshot.onComplete = nil
	if len(t.completed) < t.config.MaxMarkers {
		t.completed = append(t.completed, snapshot)
	} else if t.config.MaxMarkers > 0 {
		t.completed[t.next] = snapshot
		t.next = (t.next + 1) % t.config.MaxMarkers
	}

	threshold := t.thresholdFor(m.Operation)
	if threshold <= 0 || m.Duration <= threshold {
		return
	}
	severity := AlertWarning
	if m.Duration > 4*threshold {
		severity = AlertCritical
	}
	alert := PerformanceAlert{
		Timestamp: m.EndTime,
		Severity:  severity,
		Operation: m.Operation,
		Threshold: threshold,
		Actual:    m.Duration,
	}
	t.alerts = append(t.alerts, alert)
	if len(t.alerts) > t.config.MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
	}
	if t.logger != nil {
		t.logger.Warn("Operation exceeded threshold",
			"operation", m.Operation,
			"severity", severity,
			"threshold", threshold,
			"duration", m.Duration,
		)
	}
}

func (t *Tracker) thresholdFor(operation string) time.Duration {
	prefix, _, _ := strings.Cut(operation, ":")
	if threshold, ok := t.config.Thresholds[prefix]; ok {
		return threshold
	}
	return t.config.DefaultThreshold
}

// GetAlerts returns a copy of the retained alerts, oldest first.
func (t *Tracker) GetAlerts() []PerformanceAlert {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PerformanceAlert(nil), t.alerts...)
}

// OperationStats summarizes the retained markers for one operation.
type OperationStats struct {
	Operation   string        `json:"operation"`
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avgDuration"`
	MaxDuration time.Duration `json:"maxDuration"`
}

// GetOverallStats returns per-operation stats over the retained markers.
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	byOp := make(map[string]*OperationStats)
	var total time.Duration
	for _, m := range t.completed {
		s, ok := byOp[m.Operation]
		if !ok {
			s = &OperationStats{Operation: m.Operation}
			byOp[m.Operation] = s
		}
		s.Count++
		if !m.Success {
			s.Failures++
		}
		if m.Duration > s.MaxDuration {
			s.MaxDuration = m.Duration
		}
		s.AvgDuration += m.Duration
		total += m.Duration
	}

	operations := make([]OperationStats, 0, len(byOp))
	for _, s := range byOp {
		s.AvgDuration /= time.Duration(s.Count)
		operations = append(operations, *s)
	}
	sort.Slice(operations, func(i, j int) bool {
		return operations[i].Operation < operations[j].Operation
	})

	return map[string]any{
		"uptime":           time.Since(t.started).Round(time.Second).String(),
		"activeOperations": t.active,
		"trackedMarkers":   len(t.completed),
		"alerts":           len(t.alerts),
		"operations":       operations,
	}
}
