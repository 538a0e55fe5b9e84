package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foxseedlab/huddle/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.ArchiveRepository {
	return &PostgresRepository{pool: pool}
}

// SaveArchive writes the archive header and its rows in one transaction and
// returns the new archive id.
func (r *PostgresRepository) SaveArchive(ctx context.Context, input repository.SaveArchiveInput) (string, error) {
	var archiveID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO session_archives (session_name, display_name, is_host, started_at, ended_at, leave_reason)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			input.SessionName, input.DisplayName, input.IsHost, input.StartedAt, input.EndedAt, input.LeaveReason)
		if err := row.Scan(&archiveID); err != nil {
			return fmt.Errorf("insert archive: %w", err)
		}

		batch := &pgx.Batch{}
		queueParticipants(batch, archiveID, input.Participants)
		if err := queueMessages(batch, archiveID, input.Messages); err != nil {
			return err
		}
		queueTranscripts(batch, archiveID, input.Transcripts)
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert archive rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return archiveID, nil
}

func queueParticipants(batch *pgx.Batch, archiveID string, participants []repository.ArchivedParticipant) {
	for _, p := range participants {
		batch.Queue(
			`INSERT INTO archived_participants (archive_id, user_id, display_name, role)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (archive_id, user_id) DO NOTHING`,
			archiveID, p.UserID, p.DisplayName, p.Role)
	}
}

func queueMessages(batch *pgx.Batch, archiveID string, messages []repository.ArchivedChatMessage) error {
	for i, m := range messages {
		reactions, err := encodeReactions(m.Reactions)
		if err != nil {
			return fmt.Errorf("encode reactions for message %s: %w", m.MessageID, err)
		}
		batch.Queue(
			`INSERT INTO archived_chat_messages
			 (archive_id, position, message_id, sender_id, sender_name, body, from_me, private, sent_at, reactions)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			archiveID, i, m.MessageID, m.SenderID, m.SenderName, m.Text, m.FromMe, m.Private, m.SentAt, reactions)
	}
	return nil
}

func queueTranscripts(batch *pgx.Batch, archiveID string, transcripts []repository.ArchivedTranscript) {
	for i, t := range transcripts {
		batch.Queue(
			`INSERT INTO archived_transcripts (archive_id, position, speaker_name, content, translation, spoken_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			archiveID, i, t.SpeakerName, t.Text, t.Translation, t.SpokenAt)
	}
}

func encodeReactions(reactions map[string][]string) (string, error) {
	if len(reactions) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(reactions)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
