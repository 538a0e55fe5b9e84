package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS session_archives (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		leave_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_archives_name ON session_archives (session_name, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS archived_participants (
		archive_id UUID NOT NULL REFERENCES session_archives(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (archive_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS archived_chat_messages (
		archive_id UUID NOT NULL REFERENCES session_archives(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		message_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		body TEXT NOT NULL,
		from_me BOOLEAN NOT NULL,
		private BOOLEAN NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		reactions JSONB NOT NULL DEFAULT '{}'::jsonb,
		PRIMARY KEY (archive_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS archived_transcripts (
		archive_id UUID NOT NULL REFERENCES session_archives(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		speaker_name TEXT NOT NULL,
		content TEXT NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		spoken_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (archive_id, position)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
