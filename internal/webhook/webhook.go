package webhook

import "context"

const ArchiveWebhookSchemaVersion = "2026-10-01"

type ArchiveWebhookParticipant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type ArchiveWebhookMessage struct {
	MessageID  string              `json:"message_id"`
	SenderName string              `json:"sender_name"`
	Text       string              `json:"text"`
	Private    bool                `json:"private"`
	SentAt     string              `json:"sent_at"`
	Reactions  map[string][]string `json:"reactions,omitempty"`
}

type ArchiveWebhookTranscript struct {
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	SpokenAt    string `json:"spoken_at"`
}

type ArchiveWebhookPayload struct {
	SchemaVersion   string                      `json:"schema_version"`
	ArchiveID       string                      `json:"archive_id,omitempty"`
	SessionName     string                      `json:"session_name"`
	StartAt         string                      `json:"start_at"`
	EndAt           string                      `json:"end_at"`
	DurationSeconds int64                       `json:"duration_seconds"`
	LeaveReason     string                      `json:"leave_reason"`
	Participants    []ArchiveWebhookParticipant `json:"participants"`
	Messages        []ArchiveWebhookMessage     `json:"messages"`
	Transcripts     []ArchiveWebhookTranscript  `json:"transcripts"`
}

type Sender interface {
	SendArchive(ctx context.Context, payload ArchiveWebhookPayload) error
}
