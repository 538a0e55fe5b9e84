package conference

import "time"

// Event is one inbound notification from the conference transport.
// Exactly one concrete type below implements it.
type Event interface {
	eventName() string
}

type SessionJoined struct {
	SelfUserID string
}

type SessionLeft struct {
	Reason string
}

type SessionError struct {
	Code    int
	Message string
}

type MembersChanged struct {
	Members []Member
}

type AudioStatusChanged struct {
	UserID    string
	Muted     bool
	Connected bool
}

type VideoStatusChanged struct {
	UserID string
	On     bool
}

type ShareStatusChanged struct {
	UserID  string
	Sharing bool
}

type ChatReceived struct {
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	IsSelf     bool
	Private    bool
	SentAt     time.Time
}

type CommandReceived struct {
	SenderID string
	Payload  []byte
}

type TranscriptionReceived struct {
	SpeakerName string
	Text        string
	Translation string
	Timestamp   time.Time
}

type WaitingUserArrived struct {
	UserID      string
	DisplayName string
	ArrivedAt   time.Time
}

func (SessionJoined) eventName() string         { return "session_joined" }
func (SessionLeft) eventName() string           { return "session_left" }
func (SessionError) eventName() string          { return "session_error" }
func (MembersChanged) eventName() string        { return "members_changed" }
func (AudioStatusChanged) eventName() string    { return "audio_status_changed" }
func (VideoStatusChanged) eventName() string    { return "video_status_changed" }
func (ShareStatusChanged) eventName() string    { return "share_status_changed" }
func (ChatReceived) eventName() string          { return "chat_received" }
func (CommandReceived) eventName() string       { return "command_received" }
func (TranscriptionReceived) eventName() string { return "transcription_received" }
func (WaitingUserArrived) eventName() string    { return "waiting_user_arrived" }

// Name returns the wire name of an event, used in logs and on the relay.
func Name(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventName()
}
