package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
)

// SQLSessionRepository persists reading sessions. Monotonic rules are
// enforced inside the UPDATE statements so concurrent heartbeats and
// completions never need a read-modify-write cycle.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{
		db:     db,
		logger: logger,
	}
}

const sessionColumns = `session_token, article_id, reader_type, user_id, visitor_key,
	started_at, last_event_at, completed_at, duration_seconds, progress_percent,
	referrer, utm_source, utm_medium, utm_campaign, device_type`

// Create inserts a new session.
func (r *SQLSessionRepository) Create(ctx context.Context, s *analytics.ReadingSession) error {
	const query = `
		INSERT INTO reading_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	readerType, userID, visitorKey := readerColumns(s.Reader)
	var duration sql.NullInt64
	if s.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*s.DurationSeconds), Valid: true}
	}
	var progress sql.NullFloat64
	if s.ProgressPercent != nil {
		progress = sql.NullFloat64{Float64: *s.ProgressPercent, Valid: true}
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		s.SessionToken,
		s.ArticleID,
		readerType,
		userID,
		visitorKey,
		database.FormatTime(s.StartedAt),
		database.FormatTime(s.LastEventAt),
		database.NullableTime(s.CompletedAt),
		duration,
		progress,
		database.NullableString(s.Acquisition.Referrer),
		database.NullableString(s.Acquisition.UTMSource),
		database.NullableString(s.Acquisition.UTMMedium),
		database.NullableString(s.Acquisition.UTMCampaign),
		database.NullableString(s.Acquisition.DeviceType),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", analytics.ErrDuplicateSession, logging.MaskToken(s.SessionToken))
		}
		r.logger.Database().Error("Reading session insert failed",
			"error", err.Error(),
			"sessionToken", logging.MaskToken(s.SessionToken),
			"articleId", s.ArticleID)
		return fmt.Errorf("failed to store reading session: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Database().Debug("Reading session insert completed",
		"sessionToken", logging.MaskToken(s.SessionToken),
		"articleId", s.ArticleID,
		"duration", elapsed)
	database.CheckAndLogSlowQuery(r.logger, query, elapsed)
	return nil
}

// FindByToken returns the session or (nil, nil) when it does not exist.
func (r *SQLSessionRepository) FindByToken(ctx context.Context, token string) (*analytics.ReadingSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM reading_sessions WHERE session_token = ?`

	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, token)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Reading session lookup failed",
			"error", err.Error(),
			"sessionToken", logging.MaskToken(token))
		return nil, fmt.Errorf("failed to load reading session: %w", err)
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return session, nil
}

// Touch advances last_event_at and raises progress. Neither column can
// move backwards regardless of the order concurrent calls land in.
func (r *SQLSessionRepository) Touch(ctx context.Context, token string, at time.Time, progress *float64) error {
	const touchQuery = `
		UPDATE reading_sessions
		SET last_event_at = MAX(last_event_at, ?)
		WHERE session_token = ?`
	const touchProgressQuery = `
		UPDATE reading_sessions
		SET last_event_at = MAX(last_event_at, ?),
			progress_percent = MAX(COALESCE(progress_percent, 0), ?)
		WHERE session_token = ?`

	start := time.Now()
	var (
		result sql.Result
		err    error
		query  = touchQuery
	)
	if progress == nil {
		result, err = r.db.ExecContext(ctx, touchQuery, database.FormatTime(at), token)
	} else {
		query = touchProgressQuery
		result, err = r.db.ExecContext(ctx, touchProgressQuery, database.FormatTime(at), *progress, token)
	}
	if err != nil {
		r.logger.Database().Error("Reading session touch failed",
			"error", err.Error(),
			"sessionToken", logging.MaskToken(token))
		return fmt.Errorf("failed to update reading session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", analytics.ErrUnknownSession, logging.MaskToken(token))
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// MarkCompleted writes completion fields once. A second call matches no
// row and reports false.
func (r *SQLSessionRepository) MarkCompleted(ctx context.Context, token string, completedAt time.Time, durationSeconds int) (bool, error) {
	const query = `
		UPDATE reading_sessions
		SET completed_at = ?,
			duration_seconds = ?,
			last_event_at = MAX(last_event_at, ?)
		WHERE session_token = ? AND completed_at IS NULL`

	start := time.Now()
	formatted := database.FormatTime(completedAt)
	result, err := r.db.ExecContext(ctx, query, formatted, durationSeconds, formatted, token)
	if err != nil {
		r.logger.Database().Error("Reading session completion failed",
			"error", err.Error(),
			"sessionToken", logging.MaskToken(token))
		return false, fmt.Errorf("failed to complete reading session: %w", err)
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reading_sessions WHERE session_token = ?)`, token,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reading session: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", analytics.ErrUnknownSession, logging.MaskToken(token))
	}
	return false, nil
}

// FindStartedInRange returns sessions with start <= started_at < end.
func (r *SQLSessionRepository) FindStartedInRange(ctx context.Context, startTime, endTime time.Time) ([]*analytics.ReadingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM reading_sessions
		WHERE started_at >= ? AND started_at < ?
		ORDER BY started_at`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, database.FormatTime(startTime), database.FormatTime(endTime))
	if err != nil {
		r.logger.Database().Error("Reading session range query failed", "error", err.Error())
		return nil, fmt.Errorf("failed to query reading sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*analytics.ReadingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reading sessions: %w", err)
	}

	elapsed := time.Since(start)
	r.logger.Database().Debug("Reading session range query completed",
		"count", len(sessions),
		"duration", elapsed)
	database.CheckAndLogSlowQuery(r.logger, query, elapsed)
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*analytics.ReadingSession, error) {
	var (
		s                                  analytics.ReadingSession
		readerType, startedAt, lastEventAt string
		userID, visitorKey, completedAt    sql.NullString
		referrer, utmSource, utmMedium     sql.NullString
		utmCampaign, deviceType            sql.NullString
		duration                           sql.NullInt64
		progress                           sql.NullFloat64
	)
	err := row.Scan(
		&s.SessionToken, &s.ArticleID, &readerType, &userID, &visitorKey,
		&startedAt, &lastEventAt, &completedAt, &duration, &progress,
		&referrer, &utmSource, &utmMedium, &utmCampaign, &deviceType,
	)
	if err != nil {
		return nil, err
	}

	if s.Reader, err = readerFromColumns(readerType, userID, visitorKey); err != nil {
		return nil, err
	}
	if s.StartedAt, err = parseTime(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if s.LastEventAt, err = parseTime(lastEventAt, "last_event_at"); err != nil {
		return nil, err
	}
	if s.CompletedAt, err = parseNullableTime(completedAt, "completed_at"); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationSeconds = &d
	}
	if progress.Valid {
		p := progress.Float64
		s.ProgressPercent = &p
	}
	s.Acquisition = analytics.AcquisitionContext{
		Referrer:    referrer.String,
		UTMSource:   utmSource.String,
		UTMMedium:   utmMedium.String,
		UTMCampaign: utmCampaign.String,
		DeviceType:  deviceType.String,
	}
	return &s, nil
}
