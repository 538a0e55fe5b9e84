package repository

import (
	"context"
	"time"
)

type SaveArchiveInput struct {
	SessionName  string
	DisplayName  string
	IsHost       bool
	StartedAt    time.Time
	EndedAt      time.Time
	LeaveReason  string
	Participants []ArchivedParticipant
	Messages     []ArchivedChatMessage
	Transcripts  []ArchivedTranscript
}

// ArchiveRepository stores finished sessions. Archives are write-only: the
// coordinator never restores state from them.
type ArchiveRepository interface {
	SaveArchive(ctx context.Context, input SaveArchiveInput) (string, error)
}
