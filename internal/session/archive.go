package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/huddle/internal/repository"
	"github.com/foxseedlab/huddle/internal/webhook"
)

// Archiver exports a finished session to the archive repository and webhook.
type Archiver struct {
	repo    repository.ArchiveRepository
	webhook webhook.Sender
	wg      sync.WaitGroup
}

func NewArchiver(repo repository.ArchiveRepository, wh webhook.Sender) *Archiver {
	return &Archiver{repo: repo, webhook: wh}
}

// ArchiveAsync runs Archive in the background. Wait blocks until it finishes.
func (a *Archiver) ArchiveAsync(settings Settings, startedAt, endedAt time.Time, reason string, snap State) {
	a.wg.Go(func() { a.Archive(settings, startedAt, endedAt, reason, snap) })
}

// Wait blocks until pending archives complete or ctx is done.
func (a *Archiver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) Archive(settings Settings, startedAt, endedAt time.Time, reason string, snap State) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveSendTimeout)
	defer cancel()

	input := buildArchiveInput(settings, startedAt, endedAt, reason, snap)
	archiveID, err := a.repo.SaveArchive(ctx, input)
	if err != nil {
		slog.Error("failed to save session archive", "error", err, "session_name", settings.SessionName)
	} else if archiveID != "" {
		slog.Info("session archived", "archive_id", archiveID, "messages", len(input.Messages), "transcripts", len(input.Transcripts))
	}
	if err := a.webhook.SendArchive(ctx, buildArchiveWebhookPayload(archiveID, input)); err != nil {
		slog.Error("failed to send archive webhook", "error", err, "session_name", settings.SessionName)
	}
}

func buildArchiveInput(settings Settings, startedAt, endedAt time.Time, reason string, snap State) repository.SaveArchiveInput {
	participants := make([]repository.ArchivedParticipant, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, repository.ArchivedParticipant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Role:        string(p.Role),
		})
	}
	messages := make([]repository.ArchivedChatMessage, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		messages = append(messages, repository.ArchivedChatMessage{
			MessageID:  m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       m.Text,
			FromMe:     m.FromMe,
			Private:    m.Private,
			SentAt:     m.SentAt,
			Reactions:  reactionNames(m.Reactions),
		})
	}
	transcripts := make([]repository.ArchivedTranscript, 0, len(snap.Transcriptions))
	for _, t := range snap.Transcriptions {
		transcripts = append(transcripts, repository.ArchivedTranscript{
			SpeakerName: t.SpeakerName,
			Text:        t.Text,
			Translation: t.Translation,
			SpokenAt:    t.Timestamp,
		})
	}
	return repository.SaveArchiveInput{
		SessionName:  settings.SessionName,
		DisplayName:  settings.DisplayName,
		IsHost:       settings.IsHost,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		LeaveReason:  reason,
		Participants: participants,
		Messages:     messages,
		Transcripts:  transcripts,
	}
}

func reactionNames(reactions map[string]map[string]string) map[string][]string {
	if len(reactions) == 0 {
		return nil
	}
	out := make(map[string][]string, len(reactions))
	for emoji, users := range reactions {
		names := make([]string, 0, len(users))
		for _, name := range users {
			names = append(names, name)
		}
		sort.Strings(names)
		out[emoji] = names
	}
	return out
}

func buildArchiveWebhookPayload(archiveID string, in repository.SaveArchiveInput) webhook.ArchiveWebhookPayload {
	durationSeconds := int64(in.EndedAt.Sub(in.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	participants := make([]webhook.ArchiveWebhookParticipant, 0, len(in.Participants))
	for _, p := range in.Participants {
		participants = append(participants, webhook.ArchiveWebhookParticipant{UserID: p.UserID, DisplayName: p.DisplayName, Role: p.Role})
	}
	messages := make([]webhook.ArchiveWebhookMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		messages = append(messages, webhook.ArchiveWebhookMessage{
			MessageID:  m.MessageID,
			SenderName: m.SenderName,
			Text:       m.Text,
			Private:    m.Private,
			SentAt:     m.SentAt.UTC().Format(time.RFC3339),
			Reactions:  m.Reactions,
		})
	}
	transcripts := make([]webhook.ArchiveWebhookTranscript, 0, len(in.Transcripts))
	for _, t := range in.Transcripts {
		transcripts = append(transcripts, webhook.ArchiveWebhookTranscript{
			SpeakerName: t.SpeakerName,
			Text:        t.Text,
			Translation: t.Translation,
			SpokenAt:    t.SpokenAt.UTC().Format(time.RFC3339),
		})
	}
	return webhook.ArchiveWebhookPayload{
		SchemaVersion:   webhook.ArchiveWebhookSchemaVersion,
		ArchiveID:       archiveID,
		SessionName:     in.SessionName,
		StartAt:         in.StartedAt.UTC().Format(time.RFC3339),
		EndAt:           in.EndedAt.UTC().Format(time.RFC3339),
		DurationSeconds: durationSeconds,
		LeaveReason:     in.LeaveReason,
		Participants:    participants,
		Messages:        messages,
		Transcripts:     transcripts,
	}
}
