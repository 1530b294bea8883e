package library

import (
	"context"
	"fmt"
)

// schema is portable between postgres and sqlite. Timestamps are RFC3339 text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS libraries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		clip_folder TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		library_id TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		file_hash TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		upload_date TEXT NOT NULL DEFAULT '',
		ai_description TEXT NOT NULL DEFAULT '',
		suggested_title TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_media_items_hash ON media_items (file_hash)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		media_id TEXT PRIMARY KEY REFERENCES media_items (id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		srt TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analyses (
		media_id TEXT PRIMARY KEY REFERENCES media_items (id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		report TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_sections (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL REFERENCES media_items (id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		start_seconds DOUBLE PRECISION NOT NULL,
		end_seconds DOUBLE PRECISION NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		quotes TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_sections_media ON analysis_sections (media_id, position)`,
	`CREATE TABLE IF NOT EXISTS tags (
		media_id TEXT NOT NULL REFERENCES media_items (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		tag_type TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (media_id, name, tag_type)
	)`,
}

// Migrate creates the library tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate library schema: %w", err)
		}
	}
	return nil
}
