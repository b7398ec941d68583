package analytics

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
)

// readerColumns splits a Reader into its stored (type, user_id, visitor_key) triple.
func readerColumns(r analytics.Reader) (string, sql.NullString, sql.NullString) {
	return string(r.Type()), database.NullableString(r.UserID()), database.NullableString(r.VisitorKey())
}

func readerFromColumns(readerType string, userID, visitorKey sql.NullString) (analytics.Reader, error) {
	return analytics.NewReader(analytics.ReaderType(readerType), userID.String, visitorKey.String)
}

func encodeMetadata(m analytics.Metadata) (sql.NullString, error) {
	raw, err := m.Encode()
	if err != nil {
		return sql.NullString{}, err
	}
	return database.NullableString(raw), nil
}

func decodeMetadata(raw sql.NullString) (analytics.Metadata, error) {
	if !raw.Valid {
		return nil, nil
	}
	return analytics.DecodeMetadata(raw.String)
}

func parseTime(raw, column string) (time.Time, error) {
	parsed, err := database.ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", column, raw, err)
	}
	return parsed, nil
}

func parseNullableTime(raw sql.NullString, column string) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	parsed, err := parseTime(raw.String, column)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
