package repository

import "time"

type ArchivedParticipant struct {
	UserID      string
	DisplayName string
	Role        string
}

type ArchivedChatMessage struct {
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	FromMe     bool
	Private    bool
	SentAt     time.Time
	// Reactions maps emoji to the display names of the reacting users.
	Reactions map[string][]string
}

type ArchivedTranscript struct {
	SpeakerName string
	Text        string
	Translation string
	SpokenAt    time.Time
}
