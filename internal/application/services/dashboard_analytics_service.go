package services

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/domain/repositories"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// Labels used for empty acquisition values.
const (
	DirectReferrer = "direct"
	NoUTMSource    = "none"
	UnknownDevice  = "unknown"
)

type SectionViews struct {
	Section string `json:"section"`
	Views   int    `json:"views"`
}

type TopArticle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Views int    `json:"views"`
}

type DayViews struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

type ViewStats struct {
	TotalViews        int            `json:"totalViews"`
	ViewsToday        int            `json:"viewsToday"`
	ViewsThisWeek     int            `json:"viewsThisWeek"`
	ViewsThisMonth    int            `json:"viewsThisMonth"`
	MonthlyViewGrowth *float64       `json:"monthlyViewGrowth"`
	UniqueReaders     int            `json:"uniqueReaders"`
	ViewsBySection    []SectionViews `json:"viewsBySection"`
	TopArticles       []TopArticle   `json:"topArticles"`
	ViewsByDay        []DayViews     `json:"viewsByDay"`
}

type ReaderDistribution struct {
	Guest      int        `json:"guest"`
	Registered int        `json:"registered"`
	Total      int        `json:"total"`
	SampleSize int        `json:"sampleSize"`
	WindowDays int        `json:"windowDays"`
	Confidence Confidence `json:"confidence"`
}

type ReadingTimeStats struct {
	AverageSeconds     *float64   `json:"averageSeconds"`
	MedianSeconds      *float64   `json:"medianSeconds"`
	P90Seconds         *float64   `json:"p90Seconds"`
	CompletionRate     *float64   `json:"completionRate"`
	CompletionEligible int        `json:"completionEligible"`
	SampleSize         int        `json:"sampleSize"`
	Confidence         Confidence `json:"confidence"`
}

type ChannelCount struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

type ShareStats struct {
	TotalShares       int            `json:"totalShares"`
	ShareRate         *float64       `json:"shareRate"`
	SessionSampleSize int            `json:"sessionSampleSize"`
	Channels          []ChannelCount `json:"channels"`
	Confidence        Confidence     `json:"confidence"`
}

type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

type AcquisitionStats struct {
	TopReferrers []NamedCount `json:"topReferrers"`
	UTMSources   []NamedCount `json:"utmSources"`
	DeviceTypes  []NamedCount `json:"deviceTypes"`
	Confidence   Confidence   `json:"confidence"`
}

// DashboardStats is recomputed on every query and never stored.
type DashboardStats struct {
	WindowDays         int                `json:"windowDays"`
	WindowStart        time.Time          `json:"windowStart"`
	WindowEnd          time.Time          `json:"windowEnd"`
	Timezone           string             `json:"timezone"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	Views              ViewStats          `json:"views"`
	ReaderDistribution ReaderDistribution `json:"readerDistribution"`
	ReadingTime        ReadingTimeStats   `json:"readingTime"`
	Shares             ShareStats         `json:"shares"`
	EngagementEvents   []EventTypeCount   `json:"engagementEvents"`
	Acquisition        AcquisitionStats   `json:"acquisition"`
}

// DashboardConfig holds the reporting policy for aggregation.
type DashboardConfig struct {
	Location          *time.Location
	DefaultWindowDays int
	MaxWindowDays     int
	TopArticlesLimit  int
}

// DashboardAnalyticsService computes dashboard statistics on demand. It
// holds no aggregation state between calls.
type DashboardAnalyticsService struct {
	sessions    analytics.SessionRepository
	events      analytics.EventRepository
	articles    repositories.ArticleCatalog
	config      DashboardConfig
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time
}

// NewDashboardAnalyticsService creates a new dashboard service. articles may
// be nil, in which case every article is reported as uncategorized.
func NewDashboardAnalyticsService(sessions analytics.SessionRepository, events analytics.EventRepository, articles repositories.ArticleCatalog, config DashboardConfig, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *DashboardAnalyticsService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DefaultWindowDays <= 0 {
		config.DefaultWindowDays = 30
	}
	if config.MaxWindowDays < config.DefaultWindowDays {
		config.MaxWindowDays = config.DefaultWindowDays
	}
	if config.TopArticlesLimit <= 0 {
		config.TopArticlesLimit = 10
	}
	return &DashboardAnalyticsService{
		sessions:    sessions,
		events:      events,
		articles:    articles,
		config:      config,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *DashboardAnalyticsService) WithClock(now func() time.Time) *DashboardAnalyticsService {
	s.now = now
	return s
}

// ClampWindow maps a requested window onto [1, MaxWindowDays], using the
// default for non-positive input.
func (s *DashboardAnalyticsService) ClampWindow(days int) int {
	if days <= 0 {
		return s.config.DefaultWindowDays
	}
	if days > s.config.MaxWindowDays {
		return s.config.MaxWindowDays
	}
	return days
}

// GetDashboardStats computes every dashboard statistic for the trailing
// window of windowDays calendar days, today included.
func (s *DashboardAnalyticsService) GetDashboardStats(ctx context.Context, windowDays int) (*DashboardStats, error) {
	start := time.Now()
	marker := s.perfTracker.StartOperation("analytics:dashboard")
	defer marker.Complete()

	loc := s.config.Location
	days := s.ClampWindow(windowDays)
	now := s.now().In(loc)
	today := startOfDay(now, loc)
	windowEnd := today.AddDate(0, 0, 1)
	windowStart := today.AddDate(0, 0, -(days - 1))
	weekStart := startOfWeek(now, loc)
	monthStart := startOfMonth(now, loc)
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	viewScanStart := windowStart
	for _, t := range []time.Time{weekStart, prevMonthStart} {
		if t.Before(viewScanStart) {
			viewScanStart = t
		}
	}

	var (
		views      []*analytics.ArticleEvent
		sessions   []*analytics.ReadingSession
		shares     []*analytics.ShareEvent
		engagement []*analytics.EngagementEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		views, err = s.events.FindArticleEventsInRange(gctx, viewScanStart, windowEnd, analytics.EventArticleView)
		return err
	})
	g.Go(func() (err error) {
		sessions, err = s.sessions.FindStartedInRange(gctx, windowStart, windowEnd)
		return err
	})
	g.Go(func() (err error) {
		shares, err = s.events.FindShareEventsInRange(gctx, windowStart, windowEnd)
		return err
	})
	g.Go(func() (err error) {
		engagement, err = s.events.FindEngagementEventsInRange(gctx, windowStart, windowEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		marker.SetError(err)
		s.logger.Analytics().Error("Failed to load dashboard inputs", "windowDays", days, "error", err.Error())
		return nil, fmt.Errorf("failed to load dashboard inputs: %w", err)
	}

	stats := &DashboardStats{
		WindowDays:  days,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Timezone:    loc.String(),
		GeneratedAt: now,
	}
	stats.Views = s.computeViews(ctx, views, windowStart, windowEnd, today, weekStart, monthStart, prevMonthStart, days)
	stats.ReaderDistribution = computeReaderDistribution(sessions, days)
	stats.ReadingTime = computeReadingTime(sessions)
	stats.Shares = computeShares(shares, len(sessions))
	stats.EngagementEvents = computeEngagement(engagement)
	stats.Acquisition = computeAcquisition(sessions)

	elapsed := time.Since(start)
	metrics.AggregationDuration.Observe(elapsed.Seconds())
	marker.AddMetadata("windowDays", days)
	marker.SetSuccess(true)
	s.logger.Analytics().Info("Computed dashboard statistics",
		"windowDays", days,
		"views", stats.Views.TotalViews,
		"sessions", len(sessions),
		"shares", len(shares),
		"duration", elapsed)
	return stats, nil
}

func (s *DashboardAnalyticsService) computeViews(ctx context.Context, events []*analytics.ArticleEvent, windowStart, windowEnd, today, weekStart, monthStart, prevMonthStart time.Time, days int) ViewStats {
	var (
		stats         ViewStats
		previousMonth int
		perArticle    = map[string]int{}
		perDay        = map[string]int{}
		readers       = map[string]struct{}{}
	)

	loc := s.config.Location
	for _, e := range events {
		ts := e.EventTimestamp.In(loc)
		if !ts.Before(today) && ts.Before(windowEnd) {
			stats.ViewsToday++
		}
		if !ts.Before(weekStart) && ts.Before(windowEnd) {
			stats.ViewsThisWeek++
		}
		if !ts.Before(monthStart) && ts.Before(windowEnd) {
			stats.ViewsThisMonth++
		}
		if !ts.Before(prevMonthStart) && ts.Before(monthStart) {
			previousMonth++
		}
		if ts.Before(windowStart) || !ts.Before(windowEnd) {
			continue
		}
		stats.TotalViews++
		perArticle[e.ArticleID]++
		perDay[ts.Format(DayFormat)]++
		if key := e.Reader.Key(); key != "" {
			readers[key] = struct{}{}
		}
	}
	stats.MonthlyViewGrowth = growth(stats.ViewsThisMonth, previousMonth)
	stats.UniqueReaders = len(readers)

	for _, day := range dayKeys(windowStart, days) {
		stats.ViewsByDay = append(stats.ViewsByDay, DayViews{Date: day, Views: perDay[day]})
	}

	metas := s.resolveArticles(ctx, perArticle)
	perSection := map[string]int{}
	for id, count := range perArticle {
		perSection[metas[id].SectionLabel()] += count
	}
	stats.ViewsBySection = make([]SectionViews, 0, len(perSection))
	for _, row := range rankCounts(perSection) {
		stats.ViewsBySection = append(stats.ViewsBySection, SectionViews{Section: row.Name, Views: row.Count})
	}
	stats.TopArticles = s.rankArticles(perArticle, metas)
	return stats
}

// resolveArticles looks up metadata once per article. Failed or missing
// lookups are left nil.
func (s *DashboardAnalyticsService) resolveArticles(ctx context.Context, perArticle map[string]int) map[string]*content.ArticleMeta {
	metas := make(map[string]*content.ArticleMeta, len(perArticle))
	if s.articles == nil {
		return metas
	}
	for id := range perArticle {
		meta, err := s.articles.GetArticleMeta(ctx, id)
		if err != nil {
			s.logger.Analytics().Warn("Article lookup failed", "articleId", id, "error", err.Error())
			continue
		}
		metas[id] = meta
	}
	return metas
}

func (s *DashboardAnalyticsService) rankArticles(perArticle map[string]int, metas map[string]*content.ArticleMeta) []TopArticle {
	type ranked struct {
		TopArticle
		published time.Time
	}
	rows := make([]ranked, 0, len(perArticle))
	for id, views := range perArticle {
		row := ranked{TopArticle: TopArticle{ID: id, Title: id, Views: views}}
		if meta := metas[id]; meta != nil {
			if meta.Title != "" {
				row.Title = meta.Title
			}
			row.published = meta.PublishedAt
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Views != rows[j].Views {
			return rows[i].Views > rows[j].Views
		}
		if !rows[i].published.Equal(rows[j].published) {
			return rows[i].published.After(rows[j].published)
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > s.config.TopArticlesLimit {
		rows = rows[:s.config.TopArticlesLimit]
	}
	out := make([]TopArticle, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.TopArticle)
	}
	return out
}

func computeReaderDistribution(sessions []*analytics.ReadingSession, days int) ReaderDistribution {
	dist := ReaderDistribution{WindowDays: days}
	for _, session := range sessions {
		switch session.Reader.Type() {
		case analytics.ReaderGuest:
			dist.Guest++
		case analytics.ReaderRegistered:
			dist.Registered++
		}
	}
	dist.Total = dist.Guest + dist.Registered
	dist.SampleSize = dist.Total
	dist.Confidence = sessionConfidence(dist.SampleSize)
	return dist
}

// computeReadingTime covers sessions with a recorded duration. The
// completion rate shares that denominator.
func computeReadingTime(sessions []*analytics.ReadingSession) ReadingTimeStats {
	var (
		stats     ReadingTimeStats
		durations []int
	)
	for _, session := range sessions {
		if session.DurationSeconds == nil {
			continue
		}
		durations = append(durations, *session.DurationSeconds)
		if session.CompletionEligible() {
			stats.CompletionEligible++
		}
	}
	sort.Ints(durations)
	stats.SampleSize = len(durations)
	stats.AverageSeconds = mean(durations)
	stats.MedianSeconds = nearestRank(durations, 50)
	stats.P90Seconds = nearestRank(durations, 90)
	stats.CompletionRate = rate(stats.CompletionEligible, stats.SampleSize)
	stats.Confidence = timedConfidence(stats.SampleSize)
	return stats
}

func computeShares(shares []*analytics.ShareEvent, sessionCount int) ShareStats {
	stats := ShareStats{
		TotalShares:       len(shares),
		SessionSampleSize: sessionCount,
		ShareRate:         rate(len(shares), sessionCount),
		Confidence:        shareConfidence(len(shares), sessionCount),
	}
	perChannel := map[string]int{}
	for _, share := range shares {
		perChannel[share.Channel]++
	}
	stats.Channels = make([]ChannelCount, 0, len(perChannel))
	for _, row := range rankCounts(perChannel) {
		stats.Channels = append(stats.Channels, ChannelCount{Channel: row.Name, Count: row.Count})
	}
	return stats
}

func computeEngagement(events []*analytics.EngagementEvent) []EventTypeCount {
	perType := map[string]int{}
	for _, e := range events {
		perType[e.EventType]++
	}
	out := make([]EventTypeCount, 0, len(perType))
	for _, row := range rankCounts(perType) {
		out = append(out, EventTypeCount{EventType: row.Name, Count: row.Count})
	}
	return out
}

func computeAcquisition(sessions []*analytics.ReadingSession) AcquisitionStats {
	referrers := map[string]int{}
	sources := map[string]int{}
	devices := map[string]int{}
	for _, session := range sessions {
		a := session.Acquisition
		referrers[referrerLabel(a.Referrer)]++
		sources[labelOr(a.UTMSource, NoUTMSource)]++
		devices[labelOr(a.DeviceType, UnknownDevice)]++
	}
	return AcquisitionStats{
		TopReferrers: rankCounts(referrers),
		UTMSources:   rankCounts(sources),
		DeviceTypes:  rankCounts(devices),
		Confidence:   sessionConfidence(len(sessions)),
	}
}

// referrerLabel reduces a referrer URL to its host.
func referrerLabel(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return DirectReferrer
	}
	if u, err := url.Parse(referrer); err == nil && u.Host != "" {
		return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	}
	return strings.ToLower(referrer)
}

func labelOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return strings.ToLower(value)
}
