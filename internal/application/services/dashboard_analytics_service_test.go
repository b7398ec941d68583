package services

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/memory"
)

type dashboardFixture struct {
	svc      *DashboardAnalyticsService
	sessions *memory.SessionRepository
	events   *memory.EventRepository
	seq      int
}

// Wednesday 2026-03-18 15:00 UTC.
var dashboardNow = time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	sessions := memory.NewSessionRepository()
	events := memory.NewEventRepository()
	catalog := memory.NewArticleCatalog(
		content.ArticleMeta{ID: "a1", Title: "Budget vote", Section: "news", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		content.ArticleMeta{ID: "a2", Title: "Cup final", Section: "sports", PublishedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	)
	logger, perf := testDeps()
	svc := NewDashboardAnalyticsService(sessions, events, catalog, DashboardConfig{
		Location:          time.UTC,
		DefaultWindowDays: 30,
		MaxWindowDays:     90,
		TopArticlesLimit:  10,
	}, logger, perf).WithClock(func() time.Time { return dashboardNow })
	return &dashboardFixture{svc: svc, sessions: sessions, events: events}
}

func (f *dashboardFixture) view(t *testing.T, articleID string, reader analytics.Reader, ts time.Time) {
	t.Helper()
	err := f.events.StoreArticleEvent(context.Background(), &analytics.ArticleEvent{
		ArticleID: articleID, EventType: analytics.EventArticleView, Reader: reader, EventTimestamp: ts,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *dashboardFixture) session(t *testing.T, reader analytics.Reader, started time.Time, duration *int, progress *float64, acq analytics.AcquisitionContext) {
	t.Helper()
	f.seq++
	s := &analytics.ReadingSession{
		SessionToken:    fmt.Sprintf("s-%d", f.seq),
		ArticleID:       "a1",
		Reader:          reader,
		Acquisition:     acq,
		StartedAt:       started,
		LastEventAt:     started,
		DurationSeconds: duration,
		ProgressPercent: progress,
	}
	if duration != nil {
		done := started.Add(time.Duration(*duration) * time.Second)
		s.CompletedAt = &done
	}
	if err := f.sessions.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func (f *dashboardFixture) share(t *testing.T, channel string, ts time.Time) {
	t.Helper()
	reader, _ := analytics.Guest("sharer")
	err := f.events.StoreShareEvent(context.Background(), &analytics.ShareEvent{
		ArticleID: "a1", Channel: channel, Reader: reader, CreatedAt: ts,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDashboardViews(t *testing.T) {
	f := newDashboardFixture(t)
	v1, v2, u1 := guest(t, "v1"), guest(t, "v2"), registered(t, "u1")

	f.view(t, "a1", v1, at(18, 9))
	f.view(t, "a1", v2, at(18, 10))
	f.view(t, "a1", u1, at(18, 11))
	f.view(t, "a2", v1, at(16, 8))
	f.view(t, "a2", v1, at(16, 9))
	f.view(t, "a2", v1, at(16, 10))
	f.view(t, "a3", v1, at(12, 0))
	f.view(t, "a1", v2, at(5, 12)) // this month, outside the window

	stats, err := f.svc.GetDashboardStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetDashboardStats() error = %v", err)
	}
	v := stats.Views

	counts := map[string][2]int{
		"totalViews":     {v.TotalViews, 7},
		"viewsToday":     {v.ViewsToday, 3},
		"viewsThisWeek":  {v.ViewsThisWeek, 6},
		"viewsThisMonth": {v.ViewsThisMonth, 8},
		"uniqueReaders":  {v.UniqueReaders, 3},
		"viewsByDay":     {len(v.ViewsByDay), 7},
	}
	for name, c := range counts {
		if c[0] != c[1] {
			t.Errorf("%s = %d, want %d", name, c[0], c[1])
		}
	}
	if v.MonthlyViewGrowth != nil {
		t.Errorf("MonthlyViewGrowth = %v, want nil with no previous-month views", *v.MonthlyViewGrowth)
	}

	wantDays := []DayViews{
		{"2026-03-12", 1}, {"2026-03-13", 0}, {"2026-03-14", 0}, {"2026-03-15", 0},
		{"2026-03-16", 3}, {"2026-03-17", 0}, {"2026-03-18", 3},
	}
	if !reflect.DeepEqual(v.ViewsByDay, wantDays) {
		t.Errorf("ViewsByDay = %v, want %v", v.ViewsByDay, wantDays)
	}

	wantSections := []SectionViews{{"news", 3}, {"sports", 3}, {content.UnsectionedLabel, 1}}
	if !reflect.DeepEqual(v.ViewsBySection, wantSections) {
		t.Errorf("ViewsBySection = %v, want %v", v.ViewsBySection, wantSections)
	}

	// a1 and a2 tie; the more recently published a2 ranks first.
	wantTop := []TopArticle{{"a2", "Cup final", 3}, {"a1", "Budget vote", 3}, {"a3", "a3", 1}}
	if !reflect.DeepEqual(v.TopArticles, wantTop) {
		t.Errorf("TopArticles = %v, want %v", v.TopArticles, wantTop)
	}
}

func TestDashboardMonthlyGrowth(t *testing.T) {
	f := newDashboardFixture(t)
	r := guest(t, "v")
	for i := 0; i < 4; i++ {
		f.view(t, "a1", r, time.Date(2026, 2, 10+i, 12, 0, 0, 0, time.UTC))
	}
	for i := 0; i < 6; i++ {
		f.view(t, "a1", r, at(2+i, 12))
	}

	stats, err := f.svc.GetDashboardStats(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if g := stats.Views.MonthlyViewGrowth; g == nil || *g != 50 {
		t.Errorf("MonthlyViewGrowth = %v, want 50", floatOrNil(g))
	}
}

func TestDashboardSessionStatistics(t *testing.T) {
	f := newDashboardFixture(t)
	day := at(17, 12)

	// Four completion-eligible sessions, six short ones.
	f.session(t, registered(t, "u1"), day, ptr(60), ptr(85.0), analytics.AcquisitionContext{Referrer: "https://www.Search.example/q", DeviceType: "mobile"})
	f.session(t, registered(t, "u2"), day, ptr(90), ptr(100.0), analytics.AcquisitionContext{UTMSource: "newsletter"})
	f.session(t, registered(t, "u3"), day, ptr(300), nil, analytics.AcquisitionContext{UTMSource: "newsletter"})
	f.session(t, guest(t, "g1"), day, ptr(240), ptr(10.0), analytics.AcquisitionContext{})
	for i := 0; i < 6; i++ {
		f.session(t, guest(t, fmt.Sprintf("guest-%d", i)), day.Add(time.Duration(i)*time.Minute), ptr(30), ptr(10.0), analytics.AcquisitionContext{DeviceType: "desktop"})
	}
	f.share(t, "mastodon", day)
	f.share(t, "email", day)
	f.share(t, "mastodon", day)

	stats, err := f.svc.GetDashboardStats(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}

	dist := stats.ReaderDistribution
	if dist.Guest != 7 || dist.Registered != 3 || dist.Total != 10 || dist.SampleSize != 10 || dist.WindowDays != 7 {
		t.Errorf("ReaderDistribution = %+v", dist)
	}
	if dist.Confidence.LowConfidence {
		t.Error("ReaderDistribution flagged low confidence at 10 sessions")
	}

	rt := stats.ReadingTime
	if got := floatOrNil(rt.CompletionRate); got != 40.0 {
		t.Errorf("CompletionRate = %v, want 40", got)
	}
	if rt.SampleSize != 10 || rt.CompletionEligible != 4 {
		t.Errorf("ReadingTime sample = %d eligible = %d", rt.SampleSize, rt.CompletionEligible)
	}
	// Sorted: 30 x6, 60, 90, 240, 300.
	if got := floatOrNil(rt.MedianSeconds); got != 30.0 {
		t.Errorf("MedianSeconds = %v, want 30", got)
	}
	if got := floatOrNil(rt.P90Seconds); got != 240.0 {
		t.Errorf("P90Seconds = %v, want 240", got)
	}
	if got := floatOrNil(rt.AverageSeconds); got != 87.0 {
		t.Errorf("AverageSeconds = %v, want 87", got)
	}

	sh := stats.Shares
	if sh.TotalShares != 3 || floatOrNil(sh.ShareRate) != 30.0 {
		t.Errorf("Shares = %d rate %v, want 3 and 30", sh.TotalShares, floatOrNil(sh.ShareRate))
	}
	if want := []ChannelCount{{"mastodon", 2}, {"email", 1}}; !reflect.DeepEqual(sh.Channels, want) {
		t.Errorf("Channels = %v, want %v", sh.Channels, want)
	}

	acq := stats.Acquisition
	if acq.TopReferrers[0] != (NamedCount{DirectReferrer, 9}) || acq.TopReferrers[1] != (NamedCount{"search.example", 1}) {
		t.Errorf("TopReferrers = %v", acq.TopReferrers)
	}
	if acq.UTMSources[0] != (NamedCount{NoUTMSource, 8}) || acq.UTMSources[1] != (NamedCount{"newsletter", 2}) {
		t.Errorf("UTMSources = %v", acq.UTMSources)
	}
	if acq.DeviceTypes[0] != (NamedCount{"desktop", 6}) {
		t.Errorf("DeviceTypes = %v", acq.DeviceTypes)
	}
}

func TestDashboardLowConfidenceStillReported(t *testing.T) {
	f := newDashboardFixture(t)
	for i, d := range []int{100, 200, 300} {
		f.session(t, guest(t, fmt.Sprintf("g%d", i)), at(18, 8+i), ptr(d), nil, analytics.AcquisitionContext{})
	}

	stats, err := f.svc.GetDashboardStats(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	rt := stats.ReadingTime
	if rt.SampleSize != 3 || !rt.Confidence.LowConfidence || rt.Confidence.MinSampleSize != MinTimedSample {
		t.Errorf("ReadingTime confidence = %+v, sample %d", rt.Confidence, rt.SampleSize)
	}
	if got := floatOrNil(rt.MedianSeconds); got != 200.0 {
		t.Errorf("MedianSeconds = %v, want 200 despite low confidence", got)
	}
	if !stats.ReaderDistribution.Confidence.LowConfidence {
		t.Error("ReaderDistribution not flagged at 3 sessions")
	}
}

func TestDashboardShareRateZeroVersusNull(t *testing.T) {
	t.Run("no shares over fifty sessions", func(t *testing.T) {
		f := newDashboardFixture(t)
		for i := 0; i < 50; i++ {
			f.session(t, guest(t, fmt.Sprintf("g%d", i)), at(18, 0).Add(time.Duration(i)*time.Second), nil, nil, analytics.AcquisitionContext{})
		}
		stats, err := f.svc.GetDashboardStats(context.Background(), 7)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Shares.TotalShares != 0 || floatOrNil(stats.Shares.ShareRate) != 0.0 {
			t.Errorf("Shares = %d rate %v, want 0 and 0", stats.Shares.TotalShares, floatOrNil(stats.Shares.ShareRate))
		}
		// No timed sessions: reading time is absent, not zero.
		if stats.ReadingTime.MedianSeconds != nil || stats.ReadingTime.CompletionRate != nil {
			t.Errorf("ReadingTime = %+v, want nil statistics", stats.ReadingTime)
		}
	})

	t.Run("two shares over fifty sessions", func(t *testing.T) {
		f := newDashboardFixture(t)
		for i := 0; i < 50; i++ {
			f.session(t, guest(t, fmt.Sprintf("g%d", i)), at(18, 0).Add(time.Duration(i)*time.Second), nil, nil, analytics.AcquisitionContext{})
		}
		f.share(t, "email", at(18, 1))
		f.share(t, "email", at(18, 2))
		stats, err := f.svc.GetDashboardStats(context.Background(), 7)
		if err != nil {
			t.Fatal(err)
		}
		if got := floatOrNil(stats.Shares.ShareRate); got != 4.0 {
			t.Errorf("ShareRate = %v, want 4", got)
		}
		if stats.Shares.Confidence.LowConfidence {
			t.Error("share statistics flagged with 50 sessions in the denominator")
		}
	})

	t.Run("no sessions", func(t *testing.T) {
		f := newDashboardFixture(t)
		f.share(t, "email", at(18, 1))
		stats, err := f.svc.GetDashboardStats(context.Background(), 7)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Shares.ShareRate != nil {
			t.Errorf("ShareRate = %v, want nil", *stats.Shares.ShareRate)
		}
	})
}

func TestDashboardEngagementBreakdown(t *testing.T) {
	f := newDashboardFixture(t)
	for _, et := range []string{"click", "empty_state", "click", "error_state", "click"} {
		if err := f.events.StoreEngagementEvent(context.Background(), &analytics.EngagementEvent{EventType: et, OccurredAt: at(18, 1)}); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := f.svc.GetDashboardStats(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventTypeCount{{"click", 3}, {"empty_state", 1}, {"error_state", 1}}
	if !reflect.DeepEqual(stats.EngagementEvents, want) {
		t.Errorf("EngagementEvents = %v, want %v", stats.EngagementEvents, want)
	}
}

func TestClampWindow(t *testing.T) {
	f := newDashboardFixture(t)
	tests := []struct {
		in, want int
	}{
		{0, 30}, {-4, 30}, {1, 1}, {45, 45}, {90, 90}, {400, 90},
	}
	for _, tt := range tests {
		if got := f.svc.ClampWindow(tt.in); got != tt.want {
			t.Errorf("ClampWindow(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDashboardEmptyStore(t *testing.T) {
	f := newDashboardFixture(t)
	stats, err := f.svc.GetDashboardStats(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.WindowDays != 30 || len(stats.Views.ViewsByDay) != 30 {
		t.Errorf("WindowDays = %d, series length = %d, want 30", stats.WindowDays, len(stats.Views.ViewsByDay))
	}
	if stats.Views.ViewsByDay[29].Date != "2026-03-18" {
		t.Errorf("last day = %s, want today", stats.Views.ViewsByDay[29].Date)
	}
	if stats.ReadingTime.CompletionRate != nil || stats.Shares.ShareRate != nil || stats.Views.MonthlyViewGrowth != nil {
		t.Error("empty store produced non-nil rates")
	}
}
