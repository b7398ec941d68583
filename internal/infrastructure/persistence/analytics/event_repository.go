// Package analytics provides the SQL implementations of the session and
// event repositories.
//
// Event tables are append-only. Range scans rely on timestamps stored as
// UTC "2006-01-02 15:04:05" strings, which sort lexically in time order.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
)

// SQLEventRepository handles event persistence to database.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:     db,
		logger: logger,
	}
}

// StoreArticleEvent saves an article event. An empty ID is filled with a
// time-ordered ULID.
func (r *SQLEventRepository) StoreArticleEvent(ctx context.Context, event *analytics.ArticleEvent) error {
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.EventTimestamp)
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO article_events (id, article_id, session_token, event_type, reader_type, user_id, visitor_key, metadata, event_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	readerType, userID, visitorKey := readerColumns(event.Reader)
	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.ArticleID,
		database.NullableString(event.SessionToken),
		string(event.EventType),
		readerType,
		userID,
		visitorKey,
		metadata,
		database.FormatTime(event.EventTimestamp),
	)
	if err != nil {
		r.logger.Database().Error("Article event insert failed",
			"error", err.Error(),
			"eventId", event.ID,
			"articleId", event.ArticleID,
			"eventType", event.EventType)
		return fmt.Errorf("failed to store article event: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Database().Debug("Article event insert completed",
		"eventId", event.ID,
		"articleId", event.ArticleID,
		"eventType", event.EventType,
		"duration", elapsed)
	database.CheckAndLogSlowQuery(r.logger, query, elapsed)
	return nil
}

// StoreShareEvent saves a share event.
func (r *SQLEventRepository) StoreShareEvent(ctx context.Context, event *analytics.ShareEvent) error {
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.CreatedAt)
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO share_events (id, article_id, session_token, channel, reader_type, user_id, visitor_key, context, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	readerType, userID, visitorKey := readerColumns(event.Reader)
	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.ArticleID,
		database.NullableString(event.SessionToken),
		event.Channel,
		readerType,
		userID,
		visitorKey,
		database.NullableString(event.Context),
		metadata,
		database.FormatTime(event.CreatedAt),
	)
	if err != nil {
		r.logger.Database().Error("Share event insert failed",
			"error", err.Error(),
			"eventId", event.ID,
			"articleId", event.ArticleID,
			"channel", event.Channel)
		return fmt.Errorf("failed to store share event: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Database().Debug("Share event insert completed",
		"eventId", event.ID,
		"articleId", event.ArticleID,
		"channel", event.Channel,
		"duration", elapsed)
	database.CheckAndLogSlowQuery(r.logger, query, elapsed)
	return nil
}

// StoreEngagementEvent saves a generic engagement event.
func (r *SQLEventRepository) StoreEngagementEvent(ctx context.Context, event *analytics.EngagementEvent) error {
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.OccurredAt)
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO engagement_events (id, event_type, article_id, user_id, session_token, metadata, duration_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var durationMs sql.NullInt64
	if event.DurationMs != nil {
		durationMs = sql.NullInt64{Int64: *event.DurationMs, Valid: true}
	}

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		database.NullableString(event.ArticleID),
		database.NullableString(event.UserID),
		database.NullableString(event.SessionToken),
		metadata,
		durationMs,
		database.FormatTime(event.OccurredAt),
	)
	if err != nil {
		r.logger.Database().Error("Engagement event insert failed",
			"error", err.Error(),
			"eventId", event.ID,
			"eventType", event.EventType)
		return fmt.Errorf("failed to store engagement event: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Database().Debug("Engagement event insert completed",
		"eventId", event.ID,
		"eventType", event.EventType,
		"duration", elapsed)
	database.CheckAndLogSlowQuery(r.logger, query, elapsed)
	return nil
}

// FindArticleEventsInRange returns events with start <= event_timestamp < end.
func (r *SQLEventRepository) FindArticleEventsInRange(ctx context.Context, startTime, endTime time.Time, types ...analytics.EventType) ([]*analytics.ArticleEvent, error) {
	query := `
		SELECT id, article_id, session_token, event_type, reader_type, user_id, visitor_key, metadata, event_timestamp
		FROM article_events
		WHERE event_timestamp >= ? AND event_timestamp < ?`
	args := []any{database.FormatTime(startTime), database.FormatTime(endTime)}
	if len(types) > 0 {
		query += ` AND event_type IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY event_timestamp`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Article event range query failed", "error", err.Error())
		return nil, fmt.Errorf("failed to query article events: %w", err)
	}
	defer rows.Close()

	var events []*analytics.ArticleEvent
	for rows.Next() {
		var (
			e                      analytics.ArticleEvent
			eventType, readerType  string
			timestamp              string
			sessionToken, metadata sql.NullString
			userID, visitorKey     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ArticleID, &sessionToken, &eventType, &readerType, &userID, &visitorKey, &metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan article event: %w", err)
		}
		e.SessionToken = sessionToken.String
		e.EventType = analytics.EventType(eventType)
		if e.Reader, err = readerFromColumns(readerType, userID, visitorKey); err != nil {
			return nil, fmt.Errorf("article event %s: %w", e.ID, err)
		}
		if e.EventTimestamp, err = parseTime(timestamp, "event_timestamp"); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeMetadata(metadata); err != nil {
			r.logger.Database().Warn("Ignoring unreadable article event metadata", "eventId", e.ID, "error", err.Error())
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article events: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return events, nil
}

// FindShareEventsInRange returns share events with start <= created_at < end.
func (r *SQLEventRepository) FindShareEventsInRange(ctx context.Context, startTime, endTime time.Time) ([]*analytics.ShareEvent, error) {
	const query = `
		SELECT id, article_id, session_token, channel, reader_type, user_id, visitor_key, context, metadata, created_at
		FROM share_events
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, database.FormatTime(startTime), database.FormatTime(endTime))
	if err != nil {
		r.logger.Database().Error("Share event range query failed", "error", err.Error())
		return nil, fmt.Errorf("failed to query share events: %w", err)
	}
	defer rows.Close()

	var events []*analytics.ShareEvent
	for rows.Next() {
		var (
			e                            analytics.ShareEvent
			readerType, createdAt        string
			sessionToken, shareContext   sql.NullString
			userID, visitorKey, metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ArticleID, &sessionToken, &e.Channel, &readerType, &userID, &visitorKey, &shareContext, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan share event: %w", err)
		}
		e.SessionToken = sessionToken.String
		e.Context = shareContext.String
		if e.Reader, err = readerFromColumns(readerType, userID, visitorKey); err != nil {
			return nil, fmt.Errorf("share event %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeMetadata(metadata); err != nil {
			r.logger.Database().Warn("Ignoring unreadable share event metadata", "eventId", e.ID, "error", err.Error())
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share events: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return events, nil
}

// FindEngagementEventsInRange returns engagement events with start <= occurred_at < end.
func (r *SQLEventRepository) FindEngagementEventsInRange(ctx context.Context, startTime, endTime time.Time) ([]*analytics.EngagementEvent, error) {
	const query = `
		SELECT id, event_type, article_id, user_id, session_token, metadata, duration_ms, occurred_at
		FROM engagement_events
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, database.FormatTime(startTime), database.FormatTime(endTime))
	if err != nil {
		r.logger.Database().Error("Engagement event range query failed", "error", err.Error())
		return nil, fmt.Errorf("failed to query engagement events: %w", err)
	}
	defer rows.Close()

	var events []*analytics.EngagementEvent
	for rows.Next() {
		var (
			e                               analytics.EngagementEvent
			occurredAt                      string
			articleID, userID, sessionToken sql.NullString
			metadata                        sql.NullString
			durationMs                      sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.EventType, &articleID, &userID, &sessionToken, &metadata, &durationMs, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan engagement event: %w", err)
		}
		e.ArticleID = articleID.String
		e.UserID = userID.String
		e.SessionToken = sessionToken.String
		if durationMs.Valid {
			d := durationMs.Int64
			e.DurationMs = &d
		}
		if e.OccurredAt, err = parseTime(occurredAt, "occurred_at"); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeMetadata(metadata); err != nil {
			r.logger.Database().Warn("Ignoring unreadable engagement event metadata", "eventId", e.ID, "error", err.Error())
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engagement events: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return events, nil
}
