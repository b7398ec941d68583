// Package database provides schema creation for the readership store
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and
// indexes. Every statement is idempotent.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// The articles table is owned by the content system. It is created here
// so a standalone deployment has somewhere to resolve titles and sections.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		section TEXT,
		published_at TEXT,
		view_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS reading_sessions (
		session_token TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		reader_type TEXT NOT NULL CHECK (reader_type IN ('guest', 'registered')),
		user_id TEXT,
		visitor_key TEXT,
		started_at TEXT NOT NULL,
		last_event_at TEXT NOT NULL,
		completed_at TEXT,
		duration_seconds INTEGER CHECK (duration_seconds IS NULL OR duration_seconds >= 0),
		progress_percent REAL CHECK (progress_percent IS NULL OR (progress_percent >= 0 AND progress_percent <= 100)),
		referrer TEXT,
		utm_source TEXT,
		utm_medium TEXT,
		utm_campaign TEXT,
		device_type TEXT,
		CHECK ((reader_type = 'guest' AND visitor_key IS NOT NULL AND user_id IS NULL)
			OR (reader_type = 'registered' AND user_id IS NOT NULL AND visitor_key IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS article_events (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		session_token TEXT,
		event_type TEXT NOT NULL,
		reader_type TEXT NOT NULL,
		user_id TEXT,
		visitor_key TEXT,
		metadata TEXT,
		event_timestamp TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS share_events (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		session_token TEXT,
		channel TEXT NOT NULL,
		reader_type TEXT NOT NULL,
		user_id TEXT,
		visitor_key TEXT,
		context TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS engagement_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		article_id TEXT,
		user_id TEXT,
		session_token TEXT,
		metadata TEXT,
		duration_ms INTEGER,
		occurred_at TEXT NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_started_at ON reading_sessions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_article_id ON reading_sessions(article_id)`,
	`CREATE INDEX IF NOT EXISTS idx_article_events_timestamp ON article_events(event_timestamp, event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_article_events_article_id ON article_events(article_id)`,
	`CREATE INDEX IF NOT EXISTS idx_article_events_session_token ON article_events(session_token)`,
	`CREATE INDEX IF NOT EXISTS idx_share_events_created_at ON share_events(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_share_events_article_id ON share_events(article_id)`,
	`CREATE INDEX IF NOT EXISTS idx_share_events_session_token ON share_events(session_token)`,
	`CREATE INDEX IF NOT EXISTS idx_engagement_events_occurred_at ON engagement_events(occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_engagement_events_session_token ON engagement_events(session_token)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at)`,
}
