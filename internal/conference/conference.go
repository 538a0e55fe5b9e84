package conference

import "context"

type Role string

const (
	RoleHost        Role = "host"
	RoleManager     Role = "manager"
	RoleParticipant Role = "participant"
	RoleGuest       Role = "guest"
)

// CanControlOthers reports whether the role may issue remote media controls.
func (r Role) CanControlOthers() bool {
	return r == RoleHost || r == RoleManager
}

type JoinOptions struct {
	SessionName string
	DisplayName string
	Password    string
	Token       string
	Role        Role
	AudioOn     bool
	VideoOn     bool
}

type Member struct {
	UserID      string
	DisplayName string
	Role        Role
	Muted       bool
	VideoOn     bool
	Sharing     bool
	IsSelf      bool
}

type Client interface {
	Join(ctx context.Context, opts JoinOptions) error
	Leave(ctx context.Context, endForAll bool) error

	StartAudio(ctx context.Context) error
	MuteSelf(ctx context.Context) error
	UnmuteSelf(ctx context.Context) error
	MuteUser(ctx context.Context, userID string) error
	StartVideo(ctx context.Context) error
	StopVideo(ctx context.Context) error

	// SendChat returns the transport-assigned message id, which may be empty.
	SendChat(ctx context.Context, toUserID, text string) (string, error)
	SendCommand(ctx context.Context, toUserID string, payload []byte) error

	StartTranscription(ctx context.Context, language string) error
	StopTranscription(ctx context.Context) error
	SetTranscriptionLanguage(ctx context.Context, language string) error

	AdmitWaitingUser(ctx context.Context, userID string) error
	ExpelWaitingUser(ctx context.Context, userID string) error

	RegisterEventHandler(handler func(Event))
	Close() error
}
