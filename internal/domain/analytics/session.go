package analytics

import (
	"fmt"
	"math"
	"time"
)

// Completion policy read by the aggregation engine. A session counts as
// completed reading when either threshold is met.
const (
	CompletionProgressPercent = 80.0
	CompletionDurationSeconds = 240
)

// AcquisitionContext carries how the reader arrived at the article.
type AcquisitionContext struct {
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
}

// ReadingSession is one attempt by one reader to read one article.
type ReadingSession struct {
	SessionToken    string
	ArticleID       string
	Reader          Reader
	Acquisition     AcquisitionContext
	StartedAt       time.Time
	LastEventAt     time.Time
	CompletedAt     *time.Time
	DurationSeconds *int
	ProgressPercent *float64
}

// IsCompleted reports whether completion has been recorded.
func (s *ReadingSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// CompletionEligible reports whether the session meets the completion policy.
func (s *ReadingSession) CompletionEligible() bool {
	if s.ProgressPercent != nil && *s.ProgressPercent >= CompletionProgressPercent {
		return true
	}
	return s.DurationSeconds != nil && *s.DurationSeconds >= CompletionDurationSeconds
}

// DurationBetween returns whole elapsed seconds from start to end, never negative.
func DurationBetween(start, end time.Time) int {
	d := int(end.Sub(start) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// ValidateProgress checks a client-reported progress value.
func ValidateProgress(p *float64) error {
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || *p < 0 || *p > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidProgress, *p)
	}
	return nil
}

// SessionView is the JSON shape of a session returned to API consumers.
type SessionView struct {
	SessionToken    string             `json:"sessionToken"`
	ArticleID       string             `json:"articleId"`
	ReaderType      ReaderType         `json:"readerType"`
	UserID          string             `json:"userId,omitempty"`
	VisitorKey      string             `json:"visitorKey,omitempty"`
	Acquisition     AcquisitionContext `json:"acquisition"`
	StartedAt       time.Time          `json:"startedAt"`
	LastEventAt     time.Time          `json:"lastEventAt"`
	CompletedAt     *time.Time         `json:"completedAt"`
	DurationSeconds *int               `json:"durationSeconds"`
	ProgressPercent *float64           `json:"progressPercent"`
}

// View converts the session to its API representation.
func (s *ReadingSession) View() SessionView {
	return SessionView{
		SessionToken:    s.SessionToken,
		ArticleID:       s.ArticleID,
		ReaderType:      s.Reader.Type(),
		UserID:          s.Reader.UserID(),
		VisitorKey:      s.Reader.VisitorKey(),
		Acquisition:     s.Acquisition,
		StartedAt:       s.StartedAt,
		LastEventAt:     s.LastEventAt,
		CompletedAt:     s.CompletedAt,
		DurationSeconds: s.DurationSeconds,
		ProgressPercent: s.ProgressPercent,
	}
}
