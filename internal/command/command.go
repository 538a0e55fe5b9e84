// Package command encodes the application-level signaling that peers exchange
// over the conference command channel.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Type string

const (
	TypeChatReaction      Type = "chat_reaction"
	TypeRemoteToggleVideo Type = "remote_toggle_video"
	TypeRemoteToggleMute  Type = "remote_toggle_mute"
	TypeRaiseHand         Type = "raise_hand"
	TypeUnmuteRequest     Type = "unmute_request"
	TypeUnmuteApproved    Type = "unmute_approved"
	TypeLiveCaption       Type = "live_caption"
	TypeReaction          Type = "reaction"
)

var (
	ErrUnknownType = errors.New("command: unknown type")
	ErrEmpty       = errors.New("command: empty payload")
)

// Command is implemented by every payload type below.
type Command interface {
	CommandType() Type
}

type ChatReaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type RemoteToggleVideo struct{}

type RemoteToggleMute struct{}

type RaiseHand struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Raised    bool   `json:"raised"`
	Timestamp int64  `json:"timestamp"`
}

type UnmuteRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UnmuteApproved struct{}

type LiveCaption struct {
	SpeakerName string `json:"speakerName"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type Reaction struct {
	Emoji      string `json:"emoji"`
	SenderName string `json:"senderName"`
	SenderID   string `json:"senderId"`
}

func (ChatReaction) CommandType() Type      { return TypeChatReaction }
func (RemoteToggleVideo) CommandType() Type { return TypeRemoteToggleVideo }
func (RemoteToggleMute) CommandType() Type  { return TypeRemoteToggleMute }
func (RaiseHand) CommandType() Type         { return TypeRaiseHand }
func (UnmuteRequest) CommandType() Type     { return TypeUnmuteRequest }
func (UnmuteApproved) CommandType() Type    { return TypeUnmuteApproved }
func (LiveCaption) CommandType() Type       { return TypeLiveCaption }
func (Reaction) CommandType() Type          { return TypeReaction }

// Encode flattens the command fields and the type discriminator into one JSON object.
func Encode(c Command) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.CommandType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.CommandType(), err)
	}
	typ, _ := json.Marshal(c.CommandType())
	fields["type"] = typ
	return json.Marshal(fields)
}

func Decode(payload []byte) (Command, error) {
	if strings.TrimSpace(string(payload)) == "" {
		return nil, ErrEmpty
	}
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeChatReaction:
		return decodeAs[ChatReaction](payload)
	case TypeRemoteToggleVideo:
		return RemoteToggleVideo{}, nil
	case TypeRemoteToggleMute:
		return RemoteToggleMute{}, nil
	case TypeRaiseHand:
		return decodeAs[RaiseHand](payload)
	case TypeUnmuteRequest:
		return decodeAs[UnmuteRequest](payload)
	case TypeUnmuteApproved:
		return UnmuteApproved{}, nil
	case TypeLiveCaption:
		return decodeAs[LiveCaption](payload)
	case TypeReaction:
		return decodeAs[Reaction](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T Command](payload []byte) (Command, error) {
	var c T
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.CommandType(), err)
	}
	return c, nil
}
