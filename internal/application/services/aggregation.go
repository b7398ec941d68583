package services

import (
	"math"
	"sort"
	"time"
)

// DayFormat is the key used for per-day series.
const DayFormat = "2006-01-02"

// NamedCount is one row of a labelled breakdown.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// nearestRank returns the p-th percentile of an ascending list using the
// nearest-rank method (index ceil(p*n/100)-1), or nil for an empty list.
func nearestRank(sorted []int, p float64) *float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	idx := int(math.Ceil(p*float64(n)/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	v := float64(sorted[idx])
	return &v
}

// mean returns the arithmetic mean, or nil for an empty list.
func mean(values []int) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return round2(float64(sum) / float64(len(values)))
}

// rate returns num/den*100, or nil when den is zero.
func rate(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	return round2(float64(num) * 100 / float64(den))
}

// growth returns the percent change from previous to current, or nil when
// previous is zero.
func growth(current, previous int) *float64 {
	if previous == 0 {
		return nil
	}
	return round2(float64(current-previous) * 100 / float64(previous))
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

// startOfDay truncates t to local midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// startOfWeek returns Monday midnight of the week containing t.
func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := startOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// dayKeys lists every day from start (inclusive) for n days, oldest first.
func dayKeys(start time.Time, n int) []string {
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, start.AddDate(0, 0, i).Format(DayFormat))
	}
	return keys
}

// rankCounts orders a tally by count descending, then name ascending.
func rankCounts(counts map[string]int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
