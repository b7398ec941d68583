package analytics

import "time"

// EventType enumerates the article event family.
type EventType string

const (
	EventArticleView      EventType = "article_view"
	EventSessionStarted   EventType = "reading_session_started"
	EventSessionHeartbeat EventType = "reading_session_heartbeat"
	EventSessionCompleted EventType = "reading_session_completed"
	EventShare            EventType = "share"
	EventCustom           EventType = "custom"
)

// Valid reports whether t is a known article event type.
func (t EventType) Valid() bool {
	switch t {
	case EventArticleView, EventSessionStarted, EventSessionHeartbeat,
		EventSessionCompleted, EventShare, EventCustom:
		return true
	}
	return false
}

// ArticleEvent is an immutable record of something that happened to an article.
type ArticleEvent struct {
	ID             string
	ArticleID      string
	SessionToken   string // empty when not tied to a reading session
	EventType      EventType
	Reader         Reader
	Metadata       Metadata
	EventTimestamp time.Time
}

// ShareEvent is an immutable record of a share action.
type ShareEvent struct {
	ID           string
	ArticleID    string
	SessionToken string
	Channel      string
	Reader       Reader
	Context      string // surface that triggered the share
	Metadata     Metadata
	CreatedAt    time.Time
}

// EngagementEvent is generic UI telemetry outside the session state machine.
type EngagementEvent struct {
	ID           string
	EventType    string
	ArticleID    string
	UserID       string
	SessionToken string
	Metadata     Metadata
	DurationMs   *int64
	OccurredAt   time.Time
}
