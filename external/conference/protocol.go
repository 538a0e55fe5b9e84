package conference

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/huddle/internal/conference"
)

// Requests sent to the relay. Every request is answered by an ack frame that
// carries the same requestId.
const (
	opJoin           = "join"
	opLeave          = "leave"
	opStartAudio     = "audio_start"
	opMuteSelf       = "mute_self"
	opUnmuteSelf     = "unmute_self"
	opMuteUser       = "mute_user"
	opStartVideo     = "video_start"
	opStopVideo      = "video_stop"
	opSendChat       = "chat_send"
	opSendCommand    = "command_send"
	opAdmitWaiting   = "waiting_admit"
	opExpelWaiting   = "waiting_expel"
	opSubscribeAudio = "audio_subscribe"
)

const (
	frameAck           = "ack"
	frameSessionJoined = "session_joined"
	frameSessionLeft   = "session_left"
	frameSessionError  = "session_error"
	frameMembers       = "members"
	frameAudioStatus   = "audio_status"
	frameVideoStatus   = "video_status"
	frameShareStatus   = "share_status"
	frameChat          = "chat"
	frameCommand       = "command"
	frameTranscription = "transcription"
	frameWaitingUser   = "waiting_user"
)

var (
	errUnknownFrame   = errors.New("unknown relay frame")
	errMalformedAudio = errors.New("malformed audio frame")
)

type outboundFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
}

type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type joinData struct {
	SessionName string `json:"sessionName"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password,omitempty"`
	Token       string `json:"token,omitempty"`
	Role        string `json:"role"`
	AudioOn     bool   `json:"audioOn"`
	VideoOn     bool   `json:"videoOn"`
}

type leaveData struct {
	EndForAll bool `json:"endForAll"`
}

type userData struct {
	UserID string `json:"userId"`
}

type chatSendData struct {
	ToUserID string `json:"toUserId,omitempty"`
	Text     string `json:"text"`
}

type commandSendData struct {
	ToUserID string `json:"toUserId,omitempty"`
	Payload  string `json:"payload"`
}

type subscribeData struct {
	Enabled bool `json:"enabled"`
}

type chatAck struct {
	MessageID string `json:"messageId"`
}

type sessionJoinedData struct {
	SelfUserID string `json:"selfUserId"`
}

type sessionLeftData struct {
	Reason string `json:"reason"`
}

type sessionErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type memberData struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Muted       bool   `json:"muted"`
	VideoOn     bool   `json:"videoOn"`
	Sharing     bool   `json:"sharing"`
	IsSelf      bool   `json:"isSelf"`
}

type membersData struct {
	Members []memberData `json:"members"`
}

type audioStatusData struct {
	UserID    string `json:"userId"`
	Muted     bool   `json:"muted"`
	Connected bool   `json:"connected"`
}

type videoStatusData struct {
	UserID string `json:"userId"`
	On     bool   `json:"on"`
}

type shareStatusData struct {
	UserID  string `json:"userId"`
	Sharing bool   `json:"sharing"`
}

type chatData struct {
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	IsSelf     bool      `json:"isSelf"`
	Private    bool      `json:"private"`
	SentAt     time.Time `json:"sentAt"`
}

type commandData struct {
	SenderID string `json:"senderId"`
	Payload  string `json:"payload"`
}

type transcriptionData struct {
	SpeakerName string `json:"speakerName"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
	Timestamp   int64  `json:"timestamp"`
}

type waitingUserData struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ArrivedAt   time.Time `json:"arrivedAt"`
}

func decodeData[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// decodeEvent converts a non-ack relay frame into a conference event.
func decodeEvent(f inboundFrame) (conference.Event, error) {
	switch f.Type {
	case frameSessionJoined:
		d, err := decodeData[sessionJoinedData](f.Data)
		return conference.SessionJoined{SelfUserID: d.SelfUserID}, err
	case frameSessionLeft:
		d, err := decodeData[sessionLeftData](f.Data)
		return conference.SessionLeft{Reason: d.Reason}, err
	case frameSessionError:
		d, err := decodeData[sessionErrorData](f.Data)
		return conference.SessionError{Code: d.Code, Message: d.Message}, err
	case frameMembers:
		d, err := decodeData[membersData](f.Data)
		if err != nil {
			return nil, err
		}
		members := make([]conference.Member, 0, len(d.Members))
		for _, m := range d.Members {
			members = append(members, conference.Member{
				UserID:      m.UserID,
				DisplayName: m.DisplayName,
				Role:        conference.Role(m.Role),
				Muted:       m.Muted,
				VideoOn:     m.VideoOn,
				Sharing:     m.Sharing,
				IsSelf:      m.IsSelf,
			})
		}
		return conference.MembersChanged{Members: members}, nil
	case frameAudioStatus:
		d, err := decodeData[audioStatusData](f.Data)
		return conference.AudioStatusChanged{UserID: d.UserID, Muted: d.Muted, Connected: d.Connected}, err
	case frameVideoStatus:
		d, err := decodeData[videoStatusData](f.Data)
		return conference.VideoStatusChanged{UserID: d.UserID, On: d.On}, err
	case frameShareStatus:
		d, err := decodeData[shareStatusData](f.Data)
		return conference.ShareStatusChanged{UserID: d.UserID, Sharing: d.Sharing}, err
	case frameChat:
		d, err := decodeData[chatData](f.Data)
		return conference.ChatReceived{
			MessageID:  d.MessageID,
			SenderID:   d.SenderID,
			SenderName: d.SenderName,
			Text:       d.Text,
			IsSelf:     d.IsSelf,
			Private:    d.Private,
			SentAt:     d.SentAt,
		}, err
	case frameCommand:
		d, err := decodeData[commandData](f.Data)
		return conference.CommandReceived{SenderID: d.SenderID, Payload: []byte(d.Payload)}, err
	case frameTranscription:
		d, err := decodeData[transcriptionData](f.Data)
		var ts time.Time
		if d.Timestamp > 0 {
			ts = time.UnixMilli(d.Timestamp)
		}
		return conference.TranscriptionReceived{SpeakerName: d.SpeakerName, Text: d.Text, Translation: d.Translation, Timestamp: ts}, err
	case frameWaitingUser:
		d, err := decodeData[waitingUserData](f.Data)
		return conference.WaitingUserArrived{UserID: d.UserID, DisplayName: d.DisplayName, ArrivedAt: d.ArrivedAt}, err
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFrame, f.Type)
	}
}

// decodeAudioFrame splits a binary frame: [len(userID)][userID][opus].
func decodeAudioFrame(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errMalformedAudio
	}
	n := int(b[0])
	if n == 0 || len(b) < 1+n {
		return "", nil, errMalformedAudio
	}
	return string(b[1 : 1+n]), b[1+n:], nil
}
