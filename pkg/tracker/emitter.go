package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Result reports what happened to a tracked event. Callers may ignore it.
type Result int

const (
	Queued Result = iota
	Dropped
	Skipped
)

func (r Result) String() string {
	switch r {
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// MetaVisitorKey carries the guest visitor id on engagement events, which
// have no reader field of their own.
const MetaVisitorKey = "visitorKey"

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 5 * time.Second
)

// Config configures an Emitter.
type Config struct {
	QueueSize   int
	SendTimeout time.Duration

	// DefaultArticleID is used by TrackShare when no article is given.
	DefaultArticleID string
	// UserID marks the reader as registered. Empty means guest.
	UserID string
}

type envelope struct {
	engagement *EngagementPayload
	share      *SharePayload
}

// Emitter queues events and delivers them from a single background
// goroutine. Tracking never blocks and never returns errors; failures are
// logged and the event is lost.
type Emitter struct {
	identity  *Identity
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time

	mu           sync.RWMutex
	closed       bool
	articleID    string
	sessionToken string
	userID       string

	queue chan envelope
	done  chan struct{}
}

// NewEmitter starts the dispatcher. Call Close to stop it.
func NewEmitter(identity *Identity, transport Transport, cfg Config, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	e := &Emitter{
		identity:  identity,
		transport: transport,
		logger:    logger,
		timeout:   cfg.SendTimeout,
		now:       time.Now,
		articleID: strings.TrimSpace(cfg.DefaultArticleID),
		userID:    strings.TrimSpace(cfg.UserID),
		queue:     make(chan envelope, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// BindArticle sets the article used when an event names none.
func (e *Emitter) BindArticle(articleID string) {
	e.mu.Lock()
	e.articleID = strings.TrimSpace(articleID)
	e.mu.Unlock()
}

// BindSession attaches a reading session token to subsequent events.
func (e *Emitter) BindSession(sessionToken string) {
	e.mu.Lock()
	e.sessionToken = strings.TrimSpace(sessionToken)
	e.mu.Unlock()
}

// TrackEvent queues an engagement event. When durationMs is nil the time
// since page load is used. Metadata that cannot be encoded is omitted.
func (e *Emitter) TrackEvent(eventType, articleID string, metadata map[string]any, durationMs *int64) Result {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		e.logger.Debug("Skipping event without a type")
		return Skipped
	}

	if durationMs == nil {
		elapsed := e.identity.sinceLoad(e.now())
		durationMs = &elapsed
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if articleID = strings.TrimSpace(articleID); articleID == "" {
		articleID = e.articleID
	}
	encoded := e.encodeMetadata(eventType, metadata)
	if e.userID == "" {
		// The visitor key survives when the caller's metadata is dropped.
		if encoded == nil {
			metadata = nil
		}
		encoded = e.encodeMetadata(eventType, withVisitor(metadata, e.identity.EnsureVisitorID()))
	}
	payload := &EngagementPayload{
		EventType:    eventType,
		ArticleID:    articleID,
		UserID:       e.userID,
		SessionToken: e.sessionTokenLocked(),
		DurationMs:   durationMs,
		Metadata:     encoded,
	}
	return e.enqueueLocked(envelope{engagement: payload})
}

// TrackShare queues a share event. It is skipped when neither articleID
// nor a bound article is available.
func (e *Emitter) TrackShare(channel, surface, action, articleID string) Result {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		e.logger.Debug("Skipping share without a channel")
		return Skipped
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if articleID = strings.TrimSpace(articleID); articleID == "" {
		articleID = e.articleID
	}
	if articleID == "" {
		e.logger.Info("Skipping share without an article", "channel", channel)
		return Skipped
	}

	payload := &SharePayload{
		ArticleID:    articleID,
		Channel:      channel,
		SessionToken: e.sessionTokenLocked(),
		Context:      surface,
	}
	if e.userID != "" {
		payload.ReaderType = "registered"
		payload.UserID = e.userID
	} else {
		payload.ReaderType = "guest"
		payload.VisitorKey = e.identity.EnsureVisitorID()
	}

	meta := map[string]any{}
	if surface != "" {
		meta["surface"] = surface
	}
	if action != "" {
		meta["action"] = action
	}
	payload.Metadata = e.encodeMetadata("share", meta)

	return e.enqueueLocked(envelope{share: payload})
}

// sessionTokenLocked prefers the bound reading session over the
// identity's per-load session id.
func (e *Emitter) sessionTokenLocked() string {
	if e.sessionToken != "" {
		return e.sessionToken
	}
	return e.identity.SessionID()
}

// withVisitor returns a copy of metadata carrying the guest visitor key.
func withVisitor(metadata map[string]any, visitorID string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[MetaVisitorKey] = visitorID
	return out
}

// enqueueLocked must be called with mu held for reading.
func (e *Emitter) enqueueLocked(env envelope) Result {
	if e.closed {
		return Dropped
	}
	select {
	case e.queue <- env:
		return Queued
	default:
		e.logger.Warn("Tracking queue full, dropping event")
		return Dropped
	}
}

func (e *Emitter) encodeMetadata(eventType string, metadata map[string]any) json.RawMessage {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		e.logger.Warn("Dropping unserializable metadata", "eventType", eventType, "error", err.Error())
		return nil
	}
	return raw
}

func (e *Emitter) dispatch() {
	defer close(e.done)
	for env := range e.queue {
		e.send(env)
	}
}

func (e *Emitter) send(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	var err error
	switch {
	case env.engagement != nil:
		err = e.transport.SendEngagement(ctx, *env.engagement)
	case env.share != nil:
		err = e.transport.SendShare(ctx, *env.share)
	}
	if err != nil {
		e.logger.Warn("Failed to deliver tracking event", "error", err.Error())
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
