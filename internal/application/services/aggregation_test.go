package services

import (
	"reflect"
	"testing"
	"time"
)

func floatOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestPercentilesAndMean(t *testing.T) {
	tests := []struct {
		name       string
		values     []int
		wantMedian any
		wantP90    any
		wantMean   any
	}{
		{"five values", []int{10, 20, 30, 40, 50}, 30.0, 50.0, 30.0},
		{"single value", []int{7}, 7.0, 7.0, 7.0},
		{"even count", []int{1, 2, 3, 4}, 2.0, 4.0, 2.5},
		{"ten values", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5.0, 9.0, 5.5},
		{"empty", nil, nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := floatOrNil(nearestRank(tt.values, 50)); got != tt.wantMedian {
				t.Errorf("median = %v, want %v", got, tt.wantMedian)
			}
			if got := floatOrNil(nearestRank(tt.values, 90)); got != tt.wantP90 {
				t.Errorf("p90 = %v, want %v", got, tt.wantP90)
			}
			if got := floatOrNil(mean(tt.values)); got != tt.wantMean {
				t.Errorf("mean = %v, want %v", got, tt.wantMean)
			}
		})
	}
}

func TestRateAndGrowth(t *testing.T) {
	tests := []struct {
		name string
		got  *float64
		want any
	}{
		{"rate 2 of 50", rate(2, 50), 4.0},
		{"rate 0 of 50", rate(0, 50), 0.0},
		{"rate without denominator", rate(0, 0), nil},
		{"rate 4 of 10", rate(4, 10), 40.0},
		{"rate rounds", rate(1, 3), 33.33},
		{"growth from zero", growth(5, 0), nil},
		{"growth up", growth(15, 10), 50.0},
		{"growth down", growth(5, 10), -50.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := floatOrNil(tt.got); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankCounts(t *testing.T) {
	got := rankCounts(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1})
	want := []NamedCount{{"c", 5}, {"a", 2}, {"b", 2}, {"d", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rankCounts() = %v, want %v", got, want)
	}
}

func TestCalendarBoundaries(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Thursday 01:30 UTC is Wednesday evening in New York.
	now := time.Date(2026, 3, 12, 1, 30, 0, 0, time.UTC)

	if got := startOfDay(now, loc).Format(DayFormat); got != "2026-03-11" {
		t.Errorf("startOfDay() = %s, want 2026-03-11", got)
	}
	if got := startOfWeek(now, loc).Format(DayFormat); got != "2026-03-09" {
		t.Errorf("startOfWeek() = %s, want Monday 2026-03-09", got)
	}
	if got := startOfMonth(now, loc).Format(DayFormat); got != "2026-03-01" {
		t.Errorf("startOfMonth() = %s, want 2026-03-01", got)
	}
	keys := dayKeys(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), 3)
	if want := []string{"2026-02-27", "2026-02-28", "2026-03-01"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("dayKeys() = %v, want %v", keys, want)
	}
}

func TestConfidenceGates(t *testing.T) {
	tests := []struct {
		name string
		got  Confidence
		low  bool
	}{
		{"sessions below", sessionConfidence(9), true},
		{"sessions at threshold", sessionConfidence(10), false},
		{"timed sessions 3", timedConfidence(3), true},
		{"timed sessions 5", timedConfidence(5), false},
		{"few shares few sessions", shareConfidence(2, 9), true},
		{"few shares many sessions", shareConfidence(2, 50), false},
		{"enough shares", shareConfidence(3, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.LowConfidence != tt.low {
				t.Errorf("LowConfidence = %v, want %v (%+v)", tt.got.LowConfidence, tt.low, tt.got)
			}
		})
	}
}
