package session

import (
	"time"

	"github.com/foxseedlab/huddle/internal/conference"
)

type Participant struct {
	UserID      string
	DisplayName string
	Role        conference.Role
	Muted       bool
	VideoOn     bool
	Sharing     bool
}

type ChatMessage struct {
	ID         string
	SenderID   string
	SenderName string
	Text       string
	FromMe     bool
	Private    bool
	SentAt     time.Time
	// Reactions maps emoji to the reacting users (user id to display name).
	Reactions map[string]map[string]string
}

// ReactionCount returns how many users reacted to the message with emoji.
func (m ChatMessage) ReactionCount(emoji string) int {
	return len(m.Reactions[emoji])
}

type TranscriptionMessage struct {
	SpeakerName string
	Text        string
	Translation string
	Timestamp   time.Time
}

type ReactionEmoji struct {
	ID         string
	SenderID   string
	SenderName string
	Emoji      string
	Timestamp  time.Time
}

type RaisedHand struct {
	UserID    string
	UserName  string
	Timestamp int64
}

type WaitingRoomUser struct {
	UserID      string
	DisplayName string
	ArrivedAt   time.Time
}

type UnmuteRequestState string

const (
	UnmuteRequestNone     UnmuteRequestState = "none"
	UnmuteRequestPending  UnmuteRequestState = "pending"
	UnmuteRequestResolved UnmuteRequestState = "resolved"
)

type UnmuteRequest struct {
	UserID   string
	UserName string
	State    UnmuteRequestState
}

// State is a consistent snapshot of the session. Collections are shared with
// the coordinator, which only ever replaces them, so they must be treated as
// read-only.
type State struct {
	// Version increases with every change; subscribers see it in order.
	Version               uint64
	Status                string
	Joined                bool
	IsHost                bool
	SelfUserID            string
	DisplayName           string
	Muted                 bool
	VideoOn               bool
	AudioConnected        bool
	UnmutePending         bool
	TranscriptionOn       bool
	TranscriptionLanguage string

	Participants   []Participant
	Messages       []ChatMessage
	Transcriptions []TranscriptionMessage
	Reactions      []ReactionEmoji
	RaisedHands    []RaisedHand
	WaitingRoom    []WaitingRoomUser
	UnmuteRequest  UnmuteRequest
}

// Message looks up a chat message by its canonical id.
func (s State) Message(id string) (ChatMessage, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return ChatMessage{}, false
}

func (s State) HandRaised(userID string) bool {
	for _, h := range s.RaisedHands {
		if h.UserID == userID {
			return true
		}
	}
	return false
}

func withReaction(m ChatMessage, emoji, userID, userName string) (ChatMessage, bool) {
	if _, exists := m.Reactions[emoji][userID]; exists {
		return m, false
	}
	reactions := make(map[string]map[string]string, len(m.Reactions)+1)
	for e, users := range m.Reactions {
		reactions[e] = users
	}
	users := make(map[string]string, len(m.Reactions[emoji])+1)
	for id, name := range m.Reactions[emoji] {
		users[id] = name
	}
	users[userID] = userName
	reactions[emoji] = users
	m.Reactions = reactions
	return m, true
}

func replaceAt[T any](list []T, i int, v T) []T {
	out := make([]T, len(list))
	copy(out, list)
	out[i] = v
	return out
}

func appended[T any](list []T, v T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, v)
}

func without[T any](list []T, drop func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(list))
	removed := false
	for _, v := range list {
		if drop(v) {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		return list, false
	}
	return out, true
}
